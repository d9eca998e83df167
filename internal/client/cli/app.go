package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/client/client"
	"github.com/dmitrijs2005/gophchat/internal/client/codec"
	"github.com/dmitrijs2005/gophchat/internal/client/config"
	"github.com/dmitrijs2005/gophchat/internal/client/keyvault"
	"github.com/dmitrijs2005/gophchat/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophchat/internal/client/services"
	"github.com/dmitrijs2005/gophchat/internal/filex"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const (
	deviceDBName = "device.db"
	downloadsDir = "downloads"
)

// chatService is the surface of services.ChatService the commands use.
type chatService interface {
	SetUser(me *api.User)
	Me() *api.User
	LoadUsers(ctx context.Context) ([]api.User, error)
	FindUser(query string) (api.User, error)
	Online() []string
	IsOnline(userID string) bool
	Unread(userID string) int
	Selected() (api.User, bool)
	SelectPeer(ctx context.Context, peerID string) ([]codec.Displayed, error)
	Send(ctx context.Context, text, imagePath string) (*codec.Displayed, error)
	SaveImage(ctx context.Context, key, dir string) (string, error)
	Listen(ctx context.Context, notify func(services.Update)) error
}

type App struct {
	config  *config.Config
	auth    services.AuthService
	chat    chatService
	db      *sql.DB
	dataDir string
	logger  logging.Logger
	reader  *bufio.Reader

	outMu sync.Mutex
	out   io.Writer

	modeMu sync.Mutex
	Mode   Mode

	listenMu   sync.Mutex
	stopListen context.CancelFunc
	listenDone chan struct{}
}

// NewApp opens the device database under the configured data directory
// and wires the services.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewTextLogger(os.Stderr, c.LogLevel)

	dataDir, err := filex.EnsureDir(c.LocalDataDir)
	if err != nil {
		return nil, err
	}

	db, err := client.InitDatabase(ctx, filepath.Join(dataDir, deviceDBName))
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	vault := keyvault.New(metadata.NewSQLiteRepository(db), logger)
	mc := codec.New(vault, logger)

	return &App{
		config:  c,
		auth:    services.NewAuthService(apiClient, vault, db, logger),
		chat:    services.NewChatService(apiClient, mc, logger),
		db:      db,
		dataDir: dataDir,
		logger:  logger,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}, nil
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, args...)
}

// Run resumes the saved session when there is one, then serves the REPL
// until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	defer func() {
		a.stopListener()
		_ = a.auth.Close(ctx)
		_ = a.db.Close()
	}()

	a.println("Welcome to GophChat CLI (type 'help' for commands)")

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	a.resume(ctx)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

func (a *App) isLoggedIn() bool {
	return a.chat.Me() != nil
}

func (a *App) getMode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.Mode
}

func (a *App) setMode(mode Mode) {
	a.modeMu.Lock()
	changed := a.Mode != mode
	a.Mode = mode
	a.modeMu.Unlock()

	if changed {
		a.printf("Switched to %s mode\n", mode)
	}
}

func (a *App) getStatus() string {
	s := ""
	if me := a.chat.Me(); me != nil {
		s = me.Username
		if peer, ok := a.chat.Selected(); ok {
			s += " -> " + peer.Username
		}
		s += " "
	}
	if mode := a.getMode(); mode != "" {
		s += string(mode)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// StartOnlineStatusWatcher pings the server every interval and reports
// transitions between online and offline mode.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.auth.Ping(pctx)
			cancel()

			if err != nil {
				a.setMode(ModeOffline)
			} else {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}

// startListener opens the realtime stream for the signed-in user in the
// background and keeps it open until stopListener.
func (a *App) startListener(ctx context.Context) {
	a.stopListener()

	lctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	a.listenMu.Lock()
	a.stopListen = cancel
	a.listenDone = done
	a.listenMu.Unlock()

	go func() {
		defer close(done)
		a.listen(lctx)
	}()
}

func (a *App) stopListener() {
	a.listenMu.Lock()
	cancel, done := a.stopListen, a.listenDone
	a.stopListen, a.listenDone = nil, nil
	a.listenMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// listen reconnects after the stream drops. Before each reconnect it
// reloads users (a unary call refreshes an expired token) and the open
// conversation, since events missed while disconnected are not replayed.
func (a *App) listen(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if _, err := a.chat.LoadUsers(ctx); err == nil {
				if peer, ok := a.chat.Selected(); ok {
					_, _ = a.chat.SelectPeer(ctx, peer.ID)
				}
			}
		}

		err := a.chat.Listen(ctx, a.onUpdate)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			a.logger.Warn(ctx, "realtime stream closed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.config.OnlineCheckInterval):
		}
	}
}

func (a *App) onUpdate(u services.Update) {
	switch {
	case u.Message != nil:
		a.println(a.formatMessage(*u.Message))
	case u.FromID != "":
		name := u.FromID
		if peer, err := a.chat.FindUser(u.FromID); err == nil {
			name = peer.Username
		}
		a.printf("New message from %s (open %s to read)\n", name, name)
	}
}
