// Package delivery pushes realtime events to the live sessions of a user.
package delivery

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/presence"
)

// SessionLookup resolves a user's live sessions. *presence.Registry
// implements it.
type SessionLookup interface {
	Sessions(userID string) []presence.Session
}

// Router fans events out to every session of the recipient. There is no
// queue and no retry: an offline recipient reads the message from history
// on its next fetch.
type Router struct {
	sessions SessionLookup
	logger   logging.Logger
}

func NewRouter(s SessionLookup, l logging.Logger) *Router {
	return &Router{sessions: s, logger: l.With("module", "delivery")}
}

// Deliver sends ev to each live session of recipientID. A session that
// fails is logged and skipped.
func (r *Router) Deliver(ctx context.Context, recipientID string, ev api.Event) {
	sessions := r.sessions.Sessions(recipientID)
	if len(sessions) == 0 {
		return
	}

	for _, s := range sessions {
		if err := s.Send(ctx, ev); err != nil {
			r.logger.Warn(ctx, "delivery failed", "user_id", recipientID, "session_id", s.ID(), "event", ev.Type, "error", err)
		}
	}
}
