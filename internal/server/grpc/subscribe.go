package grpc

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/server/presence"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Subscribe registers the stream as a presence session and forwards its
// events until the client goes away, the session is dropped or the server
// shuts down.
func (s *GRPCServer) Subscribe(_ *api.SubscribeRequest, stream grpc.ServerStreamingServer[api.Event]) error {
	ctx := stream.Context()
	userID, err := s.currentUserID(ctx)
	if err != nil {
		return err
	}

	sess := presence.NewChanSession(s.sessionBuffer)
	s.registry.Connect(ctx, userID, sess)
	defer s.registry.Disconnect(context.WithoutCancel(ctx), userID, sess.ID())

	s.logger.Info(ctx, "session opened", "user_id", userID, "session_id", sess.ID())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.shutdown:
			return status.Error(codes.Unavailable, "server shutting down")
		case <-sess.Done():
			return status.Error(codes.Unavailable, "session closed")
		case ev := <-sess.Events():
			if err := stream.Send(&ev); err != nil {
				s.logger.Warn(ctx, "session send failed", "session_id", sess.ID(), "error", err)
				return err
			}
		}
	}
}
