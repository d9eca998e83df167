package grpc

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/presence"
	"github.com/dmitrijs2005/gophchat/internal/server/services"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

type fakeUsers struct {
	registerIn   services.RegisterInput
	registerResp *models.User
	registerErr  error

	loginTokens *services.TokenPair
	loginUser   *models.User
	loginErr    error

	refreshResp *services.TokenPair
	refreshErr  error

	user    *models.User
	userErr error

	updateIn   models.ProfileUpdate
	updateResp *models.User
	updateErr  error

	sidebar    []models.SidebarEntry
	sidebarErr error
}

func (f *fakeUsers) Register(_ context.Context, in services.RegisterInput) (*models.User, error) {
	f.registerIn = in
	return f.registerResp, f.registerErr
}

func (f *fakeUsers) Login(context.Context, string, string) (*services.TokenPair, *models.User, error) {
	return f.loginTokens, f.loginUser, f.loginErr
}

func (f *fakeUsers) RefreshToken(context.Context, string) (*services.TokenPair, error) {
	return f.refreshResp, f.refreshErr
}

func (f *fakeUsers) GetUser(context.Context, string) (*models.User, error) {
	return f.user, f.userErr
}

func (f *fakeUsers) UpdateProfile(_ context.Context, _ string, upd models.ProfileUpdate) (*models.User, error) {
	f.updateIn = upd
	return f.updateResp, f.updateErr
}

func (f *fakeUsers) Sidebar(context.Context, string) ([]models.SidebarEntry, error) {
	return f.sidebar, f.sidebarErr
}

type fakeMessages struct {
	history    []*models.Message
	historyErr error
	peer       string

	sendIn   services.SendInput
	sender   string
	sendResp *models.Message
	sendErr  error
}

func (f *fakeMessages) History(_ context.Context, _, peerID string) ([]*models.Message, error) {
	f.peer = peerID
	return f.history, f.historyErr
}

func (f *fakeMessages) Send(_ context.Context, senderID string, in services.SendInput) (*models.Message, error) {
	f.sender = senderID
	f.sendIn = in
	return f.sendResp, f.sendErr
}

type fakeMedia struct {
	key, url string
	err      error
}

func (f *fakeMedia) UploadURL(context.Context, string) (string, string, error) {
	return f.key, f.url, f.err
}

func (f *fakeMedia) DownloadURL(context.Context, string) (string, error) {
	return f.url, f.err
}

type fakeRegistry struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
	last         presence.Session
}

func (f *fakeRegistry) Connect(_ context.Context, userID string, s presence.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, userID)
	f.last = s
}

func (f *fakeRegistry) Disconnect(_ context.Context, userID, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, userID)
}

type fakeAuthenticator struct {
	user *models.User
	err  error
}

func (f *fakeAuthenticator) Authenticate(context.Context, string) (*models.User, error) {
	return f.user, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		EndpointAddrGRPC:  "127.0.0.1:0",
		SecretKey:         "k",
		SessionBufferSize: 8,
	}
}

type testDeps struct {
	users    *fakeUsers
	messages *fakeMessages
	media    *fakeMedia
	registry *fakeRegistry
	auth     *fakeAuthenticator
}

func newServer() (*GRPCServer, *testDeps) {
	d := &testDeps{
		users:    &fakeUsers{},
		messages: &fakeMessages{},
		media:    &fakeMedia{},
		registry: &fakeRegistry{},
		auth:     &fakeAuthenticator{},
	}
	return NewGRPCServer(testConfig(), nopLogger{}, d.users, d.messages, d.media, d.registry, d.auth), d
}

func withUser(id string) context.Context {
	return context.WithValue(context.Background(), userIDKey, id)
}
