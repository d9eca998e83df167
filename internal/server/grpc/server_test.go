package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/delivery"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv, _ := newServer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.EndpointAddrGRPC = "127.0.0.1:99999"
	srv := NewGRPCServer(cfg, nopLogger{}, &fakeUsers{}, &fakeMessages{}, &fakeMedia{}, &fakeRegistry{}, &fakeAuthenticator{})

	assert.Error(t, srv.Run(context.Background()))
}

// startBufconn serves s on an in-memory listener and returns a client.
func startBufconn(t *testing.T, s *GRPCServer) (api.ChatServiceClient, context.CancelFunc) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		_ = conn.Close()
		<-done
	})

	return api.NewChatServiceClient(conn), cancel
}

func TestSubscribe_EndToEnd(t *testing.T) {
	reg := presence.New(logging.Discard())
	router := delivery.NewRouter(reg, logging.Discard())
	authn := &fakeAuthenticator{user: &models.User{ID: "bob"}}

	s := NewGRPCServer(testConfig(), nopLogger{}, &fakeUsers{}, &fakeMessages{}, &fakeMedia{}, reg, authn)
	client, stop := startBufconn(t, s)

	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, "token")
	stream, err := client.Subscribe(ctx, &api.SubscribeRequest{})
	require.NoError(t, err)

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, common.EventOnlineUsers, ev.Type)
	assert.Equal(t, []string{"bob"}, ev.OnlineUsers)
	assert.True(t, reg.IsOnline("bob"))

	router.Deliver(context.Background(), "bob", api.NewMessageEvent(&api.Message{ID: "m1", Text: "ct", IsEncrypted: true}))

	ev, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, common.EventNewMessage, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "m1", ev.Message.ID)
	assert.True(t, ev.Message.IsEncrypted)

	stop()

	_, err = stream.Recv()
	require.Error(t, err)
	assert.Eventually(t, func() bool { return !reg.IsOnline("bob") }, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribe_RejectsUnauthenticated(t *testing.T) {
	s, d := newServer()
	d.auth.err = common.ErrorUnauthorized
	client, _ := startBufconn(t, s)

	stream, err := client.Subscribe(context.Background(), &api.SubscribeRequest{})
	require.NoError(t, err)

	_, err = stream.Recv()
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Empty(t, d.registry.connected)
}

func TestUnary_OverBufconn(t *testing.T) {
	s, _ := newServer()
	client, _ := startBufconn(t, s)

	resp, err := client.Ping(context.Background(), &api.PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "OK", resp.Status)

	_, err = client.ListUsers(context.Background(), &api.ListUsersRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
