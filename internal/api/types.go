package api

import (
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
)

// User is a public profile as seen by other users.
type User struct {
	ID                  string    `json:"id"`
	Username            string    `json:"username"`
	Email               string    `json:"email,omitempty"`
	ProfilePic          string    `json:"profilePic,omitempty"`
	EncryptionPublicKey string    `json:"encryptionPublicKey,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`

	// LastMessage is filled only in sidebar listings.
	LastMessage *Message `json:"lastMessage,omitempty"`
}

// Message is a persisted chat message. When IsEncrypted is set, Text holds
// base64 AES-GCM ciphertext, EncryptionIV its nonce and SenderPublicKey the
// sender's public JWK at send time. Image is an object-storage key and is
// never encrypted.
type Message struct {
	ID              string    `json:"id"`
	SenderID        string    `json:"senderId"`
	ReceiverID      string    `json:"receiverId"`
	Text            string    `json:"text,omitempty"`
	Image           string    `json:"image,omitempty"`
	IsEncrypted     bool      `json:"isEncrypted"`
	EncryptionIV    string    `json:"encryptionIv,omitempty"`
	SenderPublicKey string    `json:"senderPublicKey,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Event is a realtime push to a connected session. OnlineUsers is always
// encoded so an empty presence snapshot reads as [].
type Event struct {
	Type        string   `json:"type"`
	OnlineUsers []string `json:"onlineUsers"`
	Message     *Message `json:"message,omitempty"`
}

// OnlineUsersEvent builds the presence snapshot event.
func OnlineUsersEvent(userIDs []string) Event {
	if userIDs == nil {
		userIDs = []string{}
	}
	return Event{Type: common.EventOnlineUsers, OnlineUsers: userIDs}
}

// NewMessageEvent builds the event pushed to a message's recipient.
func NewMessageEvent(m *Message) Event {
	return Event{Type: common.EventNewMessage, Message: m}
}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type RegisterRequest struct {
	Username            string `json:"username"`
	Email               string `json:"email"`
	Password            string `json:"password"`
	EncryptionPublicKey string `json:"encryptionPublicKey,omitempty"`
}

type RegisterResponse struct {
	User User `json:"user"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type CheckAuthRequest struct{}

type CheckAuthResponse struct {
	User User `json:"user"`
}

// UpdateProfileRequest carries only the fields to change; nil means leave
// as is.
type UpdateProfileRequest struct {
	Username            *string `json:"username,omitempty"`
	ProfilePic          *string `json:"profilePic,omitempty"`
	EncryptionPublicKey *string `json:"encryptionPublicKey,omitempty"`
}

type UpdateProfileResponse struct {
	User User `json:"user"`
}

type ListUsersRequest struct{}

type ListUsersResponse struct {
	Users []User `json:"users"`
}

type GetMessagesRequest struct {
	PeerID string `json:"peerId"`
}

type GetMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type SendMessageRequest struct {
	ReceiverID      string `json:"receiverId"`
	Text            string `json:"text,omitempty"`
	Image           string `json:"image,omitempty"`
	IsEncrypted     bool   `json:"isEncrypted"`
	EncryptionIV    string `json:"encryptionIv,omitempty"`
	SenderPublicKey string `json:"senderPublicKey,omitempty"`
}

type SendMessageResponse struct {
	Message Message `json:"message"`
}

type GetImageUploadURLRequest struct{}

type GetImageUploadURLResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type GetImageURLRequest struct {
	Key string `json:"key"`
}

type GetImageURLResponse struct {
	URL string `json:"url"`
}

type SubscribeRequest struct{}
