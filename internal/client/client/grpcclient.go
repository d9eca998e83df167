package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      api.ChatServiceClient

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	onRefresh    func(access, refresh string)
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	return st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	access, _ := s.Tokens()

	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if err == nil || !isTokenExpired(err) {
		return err
	}

	if rerr := s.refresh(ctx); rerr != nil {
		return err
	}

	access, _ = s.Tokens()
	return invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
}

// streamAccessTokenInterceptor authenticates the Subscribe handshake. An
// expired token surfaces on the first Recv, so refreshing is left to the
// caller's reconnect loop.
func (s *GRPCClient) streamAccessTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	access, _ := s.Tokens()
	return streamer(withAccessToken(ctx, access), desc, cc, method, opts...)
}

func (s *GRPCClient) refresh(ctx context.Context) error {
	_, refreshToken := s.Tokens()
	if refreshToken == "" {
		return ErrUnauthorized
	}

	resp, err := s.client.RefreshToken(ctx, &api.RefreshTokenRequest{RefreshToken: refreshToken})
	if err != nil {
		return s.mapError(err)
	}

	s.setTokens(resp.AccessToken, resp.RefreshToken, true)
	return nil
}

// NewGRPCClient connects lazily to endpointURL. Extra dial options are
// appended after the defaults.
func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	if err := c.InitGRPCClient(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(opts ...grpc.DialOption) error {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithStreamInterceptor(s.streamAccessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(s.endpointURL, dialOpts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = api.NewChatServiceClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Tokens returns the current access and refresh tokens.
func (s *GRPCClient) Tokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

// SetTokens installs a saved session, e.g. a refresh token read from the
// device database.
func (s *GRPCClient) SetTokens(access, refresh string) {
	s.setTokens(access, refresh, false)
}

// ClearTokens forgets the session.
func (s *GRPCClient) ClearTokens() {
	s.setTokens("", "", false)
}

// OnTokensRefreshed registers fn to be called after every rotation so the
// new refresh token can be persisted.
func (s *GRPCClient) OnTokensRefreshed(fn func(access, refresh string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefresh = fn
}

func (s *GRPCClient) setTokens(access, refresh string, notify bool) {
	s.mu.Lock()
	s.accessToken = access
	s.refreshToken = refresh
	fn := s.onRefresh
	s.mu.Unlock()

	if notify && fn != nil {
		fn(access, refresh)
	}
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &api.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}

	if resp.Status != "OK" {
		return ErrUnavailable
	}

	return nil
}

func (s *GRPCClient) Register(ctx context.Context, username, email, password, publicKey string) (*api.User, error) {
	req := &api.RegisterRequest{Username: username, Email: email, Password: password, EncryptionPublicKey: publicKey}

	resp, err := s.client.Register(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return &resp.User, nil
}

// Login stores the issued token pair and returns the signed-in profile.
func (s *GRPCClient) Login(ctx context.Context, email, password string) (*api.User, error) {
	resp, err := s.client.Login(ctx, &api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.setTokens(resp.AccessToken, resp.RefreshToken, false)
	return &resp.User, nil
}

// Refresh rotates the token pair using the stored refresh token.
func (s *GRPCClient) Refresh(ctx context.Context) error {
	return s.refresh(ctx)
}

func (s *GRPCClient) CheckAuth(ctx context.Context) (*api.User, error) {
	resp, err := s.client.CheckAuth(ctx, &api.CheckAuthRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &resp.User, nil
}

func (s *GRPCClient) UpdateProfile(ctx context.Context, req *api.UpdateProfileRequest) (*api.User, error) {
	resp, err := s.client.UpdateProfile(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return &resp.User, nil
}

func (s *GRPCClient) ListUsers(ctx context.Context) ([]api.User, error) {
	resp, err := s.client.ListUsers(ctx, &api.ListUsersRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Users, nil
}

func (s *GRPCClient) GetMessages(ctx context.Context, peerID string) ([]api.Message, error) {
	resp, err := s.client.GetMessages(ctx, &api.GetMessagesRequest{PeerID: peerID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Messages, nil
}

func (s *GRPCClient) SendMessage(ctx context.Context, req *api.SendMessageRequest) (*api.Message, error) {
	resp, err := s.client.SendMessage(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return &resp.Message, nil
}

// GetImageUploadURL returns a storage key and a presigned PUT URL for it.
func (s *GRPCClient) GetImageUploadURL(ctx context.Context) (string, string, error) {
	resp, err := s.client.GetImageUploadURL(ctx, &api.GetImageUploadURLRequest{})
	if err != nil {
		return "", "", s.mapError(err)
	}
	return resp.Key, resp.URL, nil
}

func (s *GRPCClient) GetImageURL(ctx context.Context, key string) (string, error) {
	resp, err := s.client.GetImageURL(ctx, &api.GetImageURLRequest{Key: key})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.URL, nil
}

// Subscribe opens the realtime session and calls handle for every event
// until the stream ends. A cancelled ctx or a clean end of stream returns
// nil.
func (s *GRPCClient) Subscribe(ctx context.Context, handle func(api.Event)) error {
	stream, err := s.client.Subscribe(ctx, &api.SubscribeRequest{})
	if err != nil {
		return s.mapError(err)
	}

	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return s.mapError(err)
		}
		handle(*ev)
	}
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.InvalidArgument, codes.AlreadyExists, codes.NotFound:
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
