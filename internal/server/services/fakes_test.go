package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	messagesrepo "github.com/dmitrijs2005/gophchat/internal/server/repositories/messages"
	refreshtokensrepo "github.com/dmitrijs2005/gophchat/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/gophchat/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

// In-memory repositories shared by the service tests.

const newUserID = "00000000-0000-0000-0000-000000000099"

type memUsers struct {
	byID      map[string]*models.User
	createErr error
}

func newMemUsers(users ...*models.User) *memUsers {
	m := &memUsers{byID: map[string]*models.User{}}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	u.ID = newUserID
	u.CreatedAt = time.Now()
	m.byID[u.ID] = u
	return u, nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) UsernameTaken(_ context.Context, username, exceptID string) (bool, error) {
	for _, u := range m.byID {
		if strings.EqualFold(u.Username, username) && u.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) UpdateProfile(_ context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.ProfilePic != nil {
		u.ProfilePic = *upd.ProfilePic
	}
	if upd.EncryptionPublicKey != nil {
		u.EncryptionPublicKey = *upd.EncryptionPublicKey
	}
	return u, nil
}

func (m *memUsers) ListExcept(_ context.Context, id string) ([]*models.User, error) {
	var out []*models.User
	for _, u := range m.byID {
		if u.ID != id {
			out = append(out, u)
		}
	}
	return out, nil
}

type memTokens struct {
	tokens    map[string]*models.RefreshToken
	createErr error
	deleted   []string
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: map[string]*models.RefreshToken{}}
}

func (m *memTokens) Create(_ context.Context, userID, token string, validity time.Duration) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: time.Now().Add(validity)}
	return nil
}

func (m *memTokens) Consume(_ context.Context, token string) (*models.RefreshToken, error) {
	t, ok := m.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	m.deleted = append(m.deleted, token)
	delete(m.tokens, token)
	return t, nil
}

func (m *memTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for k, t := range m.tokens {
		if t.Expires.Before(now) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

type memMessages struct {
	stored []*models.Message
	last   map[string]*models.Message
}

func (m *memMessages) Create(_ context.Context, msg *models.Message) (*models.Message, error) {
	msg.ID = fmt.Sprintf("m-%d", len(m.stored)+1)
	msg.CreatedAt = time.Now()
	m.stored = append(m.stored, msg)
	return msg, nil
}

func (m *memMessages) Conversation(_ context.Context, a, b string) ([]*models.Message, error) {
	var out []*models.Message
	for _, msg := range m.stored {
		if (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memMessages) LastMessages(context.Context, string) (map[string]*models.Message, error) {
	return m.last, nil
}

type fakeRepoManager struct {
	users    *memUsers
	tokens   *memTokens
	messages *memMessages
}

func newFakeRepoManager(users ...*models.User) *fakeRepoManager {
	return &fakeRepoManager{users: newMemUsers(users...), tokens: newMemTokens(), messages: &memMessages{}}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error        { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository                 { return m.users }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokensrepo.Repository { return m.tokens }
func (m *fakeRepoManager) Messages(dbx.DBTX) messagesrepo.Repository           { return m.messages }

type recordedDelivery struct {
	recipient string
	event     api.Event
}

type fakeDeliverer struct {
	mu    sync.Mutex
	calls []recordedDelivery
}

func (f *fakeDeliverer) Deliver(_ context.Context, recipientID string, ev api.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedDelivery{recipient: recipientID, event: ev})
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
		S3Region:                     "us-east-1",
		S3RootUser:                   "minioadmin",
		S3RootPassword:               "minioadmin",
		S3BaseEndpoint:               "http://127.0.0.1:9000",
		S3Bucket:                     "chat-images",
	}
}

var discard = logging.Discard()
