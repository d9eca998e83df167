// Package presence tracks which users currently hold live realtime
// sessions. A user is online while at least one of their sessions is
// connected; every change in the online set is broadcast to all sessions
// as a full snapshot.
package presence

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// Session is one live transport connection (gRPC stream or websocket).
type Session interface {
	ID() string
	Send(ctx context.Context, ev api.Event) error
	Close()
}

// Registry maps user IDs to their live sessions.
type Registry struct {
	mu    sync.Mutex
	users map[string]map[string]Session

	// held across a broadcast so snapshots reach sessions in mutation order
	broadcastMu sync.Mutex

	logger logging.Logger
}

func New(l logging.Logger) *Registry {
	return &Registry{
		users:  make(map[string]map[string]Session),
		logger: l.With("module", "presence"),
	}
}

// Connect adds s to userID's session set and broadcasts the new snapshot.
func (r *Registry) Connect(ctx context.Context, userID string, s Session) {
	r.mu.Lock()
	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]Session)
		r.users[userID] = set
	}
	set[s.ID()] = s
	r.broadcastLocked(ctx)

	r.logger.Debug(ctx, "session connected", "user_id", userID, "session_id", s.ID())
}

// Disconnect removes a session. The user's entry is deleted together with
// its last session. Unknown users and sessions are ignored without a
// broadcast.
func (r *Registry) Disconnect(ctx context.Context, userID, sessionID string) {
	r.mu.Lock()
	set, ok := r.users[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, ok := set[sessionID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(r.users, userID)
	}
	r.broadcastLocked(ctx)

	r.logger.Debug(ctx, "session disconnected", "user_id", userID, "session_id", sessionID)
}

// broadcastLocked snapshots the state, releases r.mu and then sends the
// snapshot to every session. Must be called with r.mu held.
func (r *Registry) broadcastLocked(ctx context.Context) {
	ev := api.OnlineUsersEvent(r.onlineLocked())
	targets := r.allSessionsLocked()

	r.broadcastMu.Lock()
	r.mu.Unlock()
	defer r.broadcastMu.Unlock()

	for _, s := range targets {
		if err := s.Send(ctx, ev); err != nil {
			r.logger.Warn(ctx, "presence broadcast failed", "session_id", s.ID(), "error", err)
		}
	}
}

func (r *Registry) onlineLocked() []string {
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) allSessionsLocked() []Session {
	var out []Session
	for _, set := range r.users {
		for _, s := range set {
			out = append(out, s)
		}
	}
	return out
}

// Online returns the sorted IDs of users with at least one session.
func (r *Registry) Online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.onlineLocked()
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[userID]
	return ok
}

// Sessions returns a copy of userID's live sessions, or nil when offline.
func (r *Registry) Sessions(userID string) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.users[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

// Close drops every entry and closes all sessions. No broadcast is sent.
func (r *Registry) Close() {
	r.mu.Lock()
	targets := r.allSessionsLocked()
	r.users = make(map[string]map[string]Session)
	r.mu.Unlock()

	for _, s := range targets {
		s.Close()
	}
}
