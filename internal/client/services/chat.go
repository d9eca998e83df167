package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/client/codec"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/filex"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/netx"
)

var (
	ErrNotSignedIn     = errors.New("not signed in")
	ErrNoPeerSelected  = errors.New("no conversation selected, use: open <username>")
	ErrUnknownUser     = errors.New("no such user")
	ErrStaleSelection  = errors.New("conversation changed while loading")
	ErrImageTooLarge   = fmt.Errorf("image larger than %d bytes", netx.MaxImageSize)
	ErrUnsupportedFile = errors.New("only image files can be sent")
)

// ChatClient is the part of the API client the chat service uses.
type ChatClient interface {
	ListUsers(ctx context.Context) ([]api.User, error)
	GetMessages(ctx context.Context, peerID string) ([]api.Message, error)
	SendMessage(ctx context.Context, req *api.SendMessageRequest) (*api.Message, error)
	GetImageUploadURL(ctx context.Context) (string, string, error)
	GetImageURL(ctx context.Context, key string) (string, error)
	Subscribe(ctx context.Context, handle func(api.Event)) error
}

// MessageCodec encrypts outgoing and renders incoming messages.
// *codec.Codec implements it.
type MessageCodec interface {
	Decode(ctx context.Context, msg api.Message, viewerID, peerPublicKey string) codec.Displayed
	Encode(ctx context.Context, senderID, receiverID, recipientPublicKey, text, image string) (*api.SendMessageRequest, error)
}

// Update tells the UI what a realtime event changed.
type Update struct {
	Online  []string
	Message *codec.Displayed
	// FromID is set for a message from a peer other than the selected one.
	FromID string
}

// file transfer seams
var (
	uploadImage   = netx.UploadToPresignedURL
	downloadImage = netx.DownloadFromPresignedURL
	readFile      = os.ReadFile
)

// ChatService holds the signed-in user's view of the chat: the user list,
// who is online and the open conversation. It is safe for concurrent use;
// the realtime stream and foreground commands update it together.
type ChatService struct {
	client ChatClient
	codec  MessageCodec
	logger logging.Logger

	mu           sync.Mutex
	me           *api.User
	users        map[string]api.User
	online       map[string]struct{}
	unread       map[string]int
	selected     string
	generation   uint64
	conversation []codec.Displayed
}

func NewChatService(c ChatClient, mc MessageCodec, l logging.Logger) *ChatService {
	s := &ChatService{client: c, codec: mc, logger: l.With("module", "chat")}
	s.reset(nil)
	return s
}

func (s *ChatService) reset(me *api.User) {
	s.me = me
	s.users = map[string]api.User{}
	s.online = map[string]struct{}{}
	s.unread = map[string]int{}
	s.selected = ""
	s.generation++
	s.conversation = nil
}

// SetUser switches the service to a signed-in user (nil on logout) and
// drops all state of the previous one.
func (s *ChatService) SetUser(me *api.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(me)
}

func (s *ChatService) Me() *api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.me
}

func (s *ChatService) viewer() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.me == nil {
		return "", ErrNotSignedIn
	}
	return s.me.ID, nil
}

// LoadUsers refreshes the sidebar: every other user with their last
// message, ordered by username.
func (s *ChatService) LoadUsers(ctx context.Context) ([]api.User, error) {
	if _, err := s.viewer(); err != nil {
		return nil, err
	}

	users, err := s.client.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.users = make(map[string]api.User, len(users))
	for _, u := range users {
		s.users[u.ID] = u
	}
	s.mu.Unlock()

	return s.Users(), nil
}

// Users returns the cached user list ordered by username.
func (s *ChatService) Users() []api.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]api.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// FindUser resolves a username (case-insensitive) or ID from the cache.
func (s *ChatService) FindUser(query string) (api.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[query]; ok {
		return u, nil
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Username, query) {
			return u, nil
		}
	}
	return api.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, query)
}

// Online returns the online user IDs, sorted.
func (s *ChatService) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onlineLocked()
}

func (s *ChatService) onlineLocked() []string {
	out := make([]string, 0, len(s.online))
	for id := range s.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *ChatService) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[userID]
	return ok
}

// Unread returns how many live messages arrived from userID while another
// conversation was open.
func (s *ChatService) Unread(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[userID]
}

// Selected returns the peer of the open conversation, if any.
func (s *ChatService) Selected() (api.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return api.User{}, false
	}
	u, ok := s.users[s.selected]
	return u, ok
}

// Conversation returns the open conversation in display order.
func (s *ChatService) Conversation() []codec.Displayed {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]codec.Displayed, len(s.conversation))
	copy(out, s.conversation)
	return out
}

// SelectPeer opens the conversation with peerID and loads its history. If
// another peer is selected before the history arrives, the result is
// discarded and ErrStaleSelection returned.
func (s *ChatService) SelectPeer(ctx context.Context, peerID string) ([]codec.Displayed, error) {
	s.mu.Lock()
	if s.me == nil {
		s.mu.Unlock()
		return nil, ErrNotSignedIn
	}
	peer, ok := s.users[peerID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, peerID)
	}
	s.generation++
	gen := s.generation
	s.selected = peerID
	s.conversation = nil
	delete(s.unread, peerID)
	viewerID := s.me.ID
	s.mu.Unlock()

	msgs, err := s.client.GetMessages(ctx, peerID)
	if err != nil {
		return nil, err
	}

	decoded := make([]codec.Displayed, 0, len(msgs))
	for _, m := range msgs {
		decoded = append(decoded, s.codec.Decode(ctx, m, viewerID, peer.EncryptionPublicKey))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return nil, ErrStaleSelection
	}
	// live messages that raced the history fetch are already in the list
	s.conversation = mergeHistory(decoded, s.conversation)
	out := make([]codec.Displayed, len(s.conversation))
	copy(out, s.conversation)
	return out, nil
}

func mergeHistory(history, live []codec.Displayed) []codec.Displayed {
	seen := make(map[string]struct{}, len(history))
	for _, d := range history {
		seen[d.Message.ID] = struct{}{}
	}
	for _, d := range live {
		if _, ok := seen[d.Message.ID]; !ok {
			history = append(history, d)
		}
	}
	return history
}

// Send encrypts text for the selected peer and sends it, with the image at
// imagePath attached when given. The sent message is appended to the
// conversation.
func (s *ChatService) Send(ctx context.Context, text, imagePath string) (*codec.Displayed, error) {
	s.mu.Lock()
	if s.me == nil {
		s.mu.Unlock()
		return nil, ErrNotSignedIn
	}
	if s.selected == "" {
		s.mu.Unlock()
		return nil, ErrNoPeerSelected
	}
	me := s.me.ID
	peer := s.users[s.selected]
	s.mu.Unlock()

	if strings.TrimSpace(text) == "" && imagePath == "" {
		return nil, common.ErrEmptyMessage
	}

	if strings.TrimSpace(text) != "" && peer.EncryptionPublicKey == "" {
		// the peer may have signed in since the list was loaded
		if _, err := s.LoadUsers(ctx); err == nil {
			if u, err := s.FindUser(peer.ID); err == nil {
				peer = u
			}
		}
	}

	if strings.TrimSpace(text) != "" && peer.EncryptionPublicKey == "" {
		return nil, common.ErrRecipientKeyMissing
	}

	var imageKey string
	if imagePath != "" {
		key, err := s.uploadImage(ctx, imagePath)
		if err != nil {
			return nil, err
		}
		imageKey = key
	}

	req, err := s.codec.Encode(ctx, me, peer.ID, peer.EncryptionPublicKey, text, imageKey)
	if err != nil {
		return nil, err
	}

	msg, err := s.client.SendMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	d := s.codec.Decode(ctx, *msg, me, peer.EncryptionPublicKey)

	s.mu.Lock()
	if s.selected == peer.ID {
		s.conversation = append(s.conversation, d)
	}
	s.mu.Unlock()

	return &d, nil
}

func (s *ChatService) uploadImage(ctx context.Context, path string) (string, error) {
	data, err := readFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > netx.MaxImageSize {
		return "", ErrImageTooLarge
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrUnsupportedFile
	}

	key, url, err := s.client.GetImageUploadURL(ctx)
	if err != nil {
		return "", err
	}
	if err := uploadImage(ctx, url, contentType, data); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return key, nil
}

// SaveImage downloads the image stored under key into dir and returns the
// file path.
func (s *ChatService) SaveImage(ctx context.Context, key, dir string) (string, error) {
	url, err := s.client.GetImageURL(ctx, key)
	if err != nil {
		return "", err
	}
	data, err := downloadImage(ctx, url)
	if err != nil {
		return "", err
	}
	dir, err = filex.EnsureDir(dir)
	if err != nil {
		return "", err
	}
	return filex.WriteInDir(dir, key, data)
}

// HandleEvent applies a realtime event. A new message is appended only
// when it comes from the selected peer; otherwise it is counted as unread.
func (s *ChatService) HandleEvent(ctx context.Context, ev api.Event) *Update {
	switch ev.Type {
	case common.EventOnlineUsers:
		s.mu.Lock()
		defer s.mu.Unlock()
		s.online = make(map[string]struct{}, len(ev.OnlineUsers))
		for _, id := range ev.OnlineUsers {
			s.online[id] = struct{}{}
		}
		return &Update{Online: s.onlineLocked()}

	case common.EventNewMessage:
		if ev.Message == nil {
			return nil
		}
		msg := *ev.Message

		s.mu.Lock()
		if s.me == nil {
			s.mu.Unlock()
			return nil
		}
		viewerID := s.me.ID
		selected := s.selected
		peer := s.users[msg.SenderID]
		if msg.SenderID != selected {
			s.unread[msg.SenderID]++
			s.mu.Unlock()
			return &Update{FromID: msg.SenderID}
		}
		s.mu.Unlock()

		d := s.codec.Decode(ctx, msg, viewerID, peer.EncryptionPublicKey)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.selected != msg.SenderID {
			s.unread[msg.SenderID]++
			return &Update{FromID: msg.SenderID}
		}
		s.conversation = append(s.conversation, d)
		return &Update{Message: &d}

	default:
		s.logger.Debug(ctx, "ignoring unknown event", "type", ev.Type)
		return nil
	}
}

// Listen runs the realtime session, passing every applied event to notify
// until ctx is cancelled or the stream fails.
func (s *ChatService) Listen(ctx context.Context, notify func(Update)) error {
	return s.client.Subscribe(ctx, func(ev api.Event) {
		if u := s.HandleEvent(ctx, ev); u != nil && notify != nil {
			notify(*u)
		}
	})
}
