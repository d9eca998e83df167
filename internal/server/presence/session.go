package presence

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/google/uuid"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrSessionOverflow = errors.New("session outbound buffer full")
)

// ChanSession is a Session backed by a buffered channel. The transport runs
// a writer goroutine that drains Events until Done is closed. A Send that
// finds the buffer full closes the session; the client is expected to
// reconnect and refetch history.
type ChanSession struct {
	id     string
	events chan api.Event
	done   chan struct{}
	once   sync.Once
}

func NewChanSession(buffer int) *ChanSession {
	if buffer < 1 {
		buffer = 1
	}
	return &ChanSession{
		id:     uuid.NewString(),
		events: make(chan api.Event, buffer),
		done:   make(chan struct{}),
	}
}

func (s *ChanSession) ID() string { return s.id }

func (s *ChanSession) Events() <-chan api.Event { return s.events }

func (s *ChanSession) Done() <-chan struct{} { return s.done }

func (s *ChanSession) Send(ctx context.Context, ev api.Event) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.events <- ev:
		return nil
	default:
		s.Close()
		return ErrSessionOverflow
	}
}

func (s *ChanSession) Close() {
	s.once.Do(func() { close(s.done) })
}
