// Package grpc exposes the chat services over gRPC using the JSON codec
// registered by package api.
package grpc

import (
	"context"
	"net"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/presence"
	"github.com/dmitrijs2005/gophchat/internal/server/services"
	"google.golang.org/grpc"
)

type userSvc interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, *models.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.User, error)
	Sidebar(ctx context.Context, userID string) ([]models.SidebarEntry, error)
}

type messageSvc interface {
	History(ctx context.Context, userID, peerID string) ([]*models.Message, error)
	Send(ctx context.Context, senderID string, in services.SendInput) (*models.Message, error)
}

type mediaSvc interface {
	UploadURL(ctx context.Context, userID string) (key, url string, err error)
	DownloadURL(ctx context.Context, key string) (string, error)
}

type presenceRegistry interface {
	Connect(ctx context.Context, userID string, s presence.Session)
	Disconnect(ctx context.Context, userID, sessionID string)
}

type sessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type GRPCServer struct {
	api.UnimplementedChatServiceServer
	address       string
	users         userSvc
	messages      messageSvc
	media         mediaSvc
	registry      presenceRegistry
	sessions      sessionAuthenticator
	logger        logging.Logger
	jwtSecret     []byte
	sessionBuffer int

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

func NewGRPCServer(cfg *config.Config, l logging.Logger, us userSvc, ms messageSvc, media mediaSvc, reg presenceRegistry, sa sessionAuthenticator) *GRPCServer {
	return &GRPCServer{
		address:       cfg.EndpointAddrGRPC,
		logger:        l.With("module", "grpc_server"),
		users:         us,
		messages:      ms,
		media:         media,
		registry:      reg,
		sessions:      sa,
		jwtSecret:     []byte(cfg.SecretKey),
		sessionBuffer: cfg.SessionBufferSize,
		shutdown:      make(chan struct{}),
	}
}

func (s *GRPCServer) newGRPCServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.sessionInterceptor),
	)
	api.RegisterChatServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.newGRPCServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		// open Subscribe streams would otherwise hold GracefulStop forever
		s.shutdownOnce.Do(func() { close(s.shutdown) })
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
