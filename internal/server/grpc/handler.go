package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors to gRPC status codes. Validation messages
// are passed through; anything unrecognised becomes a bare Internal.
func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, "refresh token expired")
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "unauthorized")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *GRPCServer) currentUserID(ctx context.Context) (string, error) {
	id, ok := userIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "unauthorized")
	}
	return id, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error) {

	return &api.PingResponse{Status: "OK"}, nil

}

func (s *GRPCServer) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {

	s.logger.Info(ctx, "Registration request")

	u, err := s.users.Register(ctx, services.RegisterInput{
		Username:            req.Username,
		Email:               req.Email,
		Password:            req.Password,
		EncryptionPublicKey: req.EncryptionPublicKey,
	})
	if err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, toStatus(err)
	}

	s.logger.Info(ctx, "Registered", "user_id", u.ID)
	return &api.RegisterResponse{User: u.ToAPI(true)}, nil

}

func (s *GRPCServer) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {

	tokens, u, err := s.users.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, toStatus(err)
	}

	return &api.LoginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		User:         u.ToAPI(true),
	}, nil

}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *api.RefreshTokenRequest) (*api.RefreshTokenResponse, error) {

	tokens, err := s.users.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, toStatus(err)
	}

	return &api.RefreshTokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil

}

func (s *GRPCServer) CheckAuth(ctx context.Context, req *api.CheckAuthRequest) (*api.CheckAuthResponse, error) {
	userID, err := s.currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		return nil, toStatus(err)
	}

	return &api.CheckAuthResponse{User: u.ToAPI(true)}, nil
}

func (s *GRPCServer) UpdateProfile(ctx context.Context, req *api.UpdateProfileRequest) (*api.UpdateProfileResponse, error) {
	userID, err := s.currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	u, err := s.users.UpdateProfile(ctx, userID, models.ProfileUpdate{
		Username:            req.Username,
		ProfilePic:          req.ProfilePic,
		EncryptionPublicKey: req.EncryptionPublicKey,
	})
	if err != nil {
		s.logger.Warn(ctx, "profile update failed", "user_id", userID, "error", err)
		return nil, toStatus(err)
	}

	return &api.UpdateProfileResponse{User: u.ToAPI(true)}, nil
}

func (s *GRPCServer) ListUsers(ctx context.Context, req *api.ListUsersRequest) (*api.ListUsersResponse, error) {
	userID, err := s.currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := s.users.Sidebar(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, toStatus(err)
	}

	users := make([]api.User, 0, len(entries))
	for _, e := range entries {
		u := e.User.ToAPI(false)
		if e.LastMessage != nil {
			m := e.LastMessage.ToAPI()
			u.LastMessage = &m
		}
		users = append(users, u)
	}

	return &api.ListUsersResponse{Users: users}, nil
}

func (s *GRPCServer) GetMessages(ctx context.Context, req *api.GetMessagesRequest) (*api.GetMessagesResponse, error) {
	userID, err := s.currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	msgs, err := s.messages.History(ctx, userID, req.PeerID)
	if err != nil {
		return nil, toStatus(err)
	}

	out := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToAPI())
	}

	return &api.GetMessagesResponse{Messages: out}, nil
}

func (s *GRPCServer) SendMessage(ctx context.Context, req *api.SendMessageRequest) (*api.SendMessageResponse, error) {
	userID, err := s.currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	m, err := s.messages.Send(ctx, userID, services.SendInput{
		ReceiverID:      req.ReceiverID,
		Text:            req.Text,
		Image:           req.Image,
		IsEncrypted:     req.IsEncrypted,
		EncryptionIV:    req.EncryptionIV,
		SenderPublicKey: req.SenderPublicKey,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	return &api.SendMessageResponse{Message: m.ToAPI()}, nil
}

func (s *GRPCServer) GetImageUploadURL(ctx context.Context, req *api.GetImageUploadURLRequest) (*api.GetImageUploadURLResponse, error) {
	userID, err := s.currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	key, url, err := s.media.UploadURL(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, toStatus(err)
	}

	return &api.GetImageUploadURLResponse{Key: key, URL: url}, nil
}

func (s *GRPCServer) GetImageURL(ctx context.Context, req *api.GetImageURLRequest) (*api.GetImageURLResponse, error) {
	if _, err := s.currentUserID(ctx); err != nil {
		return nil, err
	}

	url, err := s.media.DownloadURL(ctx, req.Key)
	if err != nil {
		return nil, toStatus(err)
	}

	return &api.GetImageURLResponse{URL: url}, nil
}
