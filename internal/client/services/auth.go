// Package services contains application services for the GophChat client.
// This file defines the authentication service: register, login, session
// resume and logout, plus publishing the device's E2EE public key.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/client/client"
	"github.com/dmitrijs2005/gophchat/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// Metadata keys of the saved session. Key pairs live under their own
// prefix and survive logout.
const (
	metaSessionPrefix = "session:"
	metaRefreshToken  = metaSessionPrefix + "refresh_token"
	metaUserID        = metaSessionPrefix + "user_id"
)

// AuthClient is the part of the API client the auth service uses.
type AuthClient interface {
	Register(ctx context.Context, username, email, password, publicKey string) (*api.User, error)
	Login(ctx context.Context, email, password string) (*api.User, error)
	Refresh(ctx context.Context) error
	CheckAuth(ctx context.Context) (*api.User, error)
	UpdateProfile(ctx context.Context, req *api.UpdateProfileRequest) (*api.User, error)
	Ping(ctx context.Context) error
	Tokens() (access, refresh string)
	SetTokens(access, refresh string)
	ClearTokens()
	OnTokensRefreshed(fn func(access, refresh string))
	Close() error
}

// PublicKeySource yields the device public key for a user.
// *keyvault.Vault implements it.
type PublicKeySource interface {
	PublicKey(ctx context.Context, userID string) (string, error)
}

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Register: create the account, then sign in as it.
//   - Login: authenticate, make sure the server holds this device's public
//     key, and save the session.
//   - Resume: restore the saved session, if any, without a password.
//   - Logout: forget the session; device key pairs are kept.
//   - Ping: check server liveness.
//
// All methods must honor context cancellation/timeouts.
type AuthService interface {
	Register(ctx context.Context, username, email string, password []byte) (*api.User, error)
	Login(ctx context.Context, email string, password []byte) (*api.User, error)
	Resume(ctx context.Context) (*api.User, error)
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type authService struct {
	client AuthClient
	keys   PublicKeySource
	db     *sql.DB
	logger logging.Logger
}

// NewAuthService constructs an AuthService. Rotated refresh tokens are
// persisted as they arrive.
func NewAuthService(c AuthClient, keys PublicKeySource, db *sql.DB, l logging.Logger) AuthService {
	a := &authService{client: c, keys: keys, db: db, logger: l.With("module", "auth")}
	c.OnTokensRefreshed(a.persistRefreshToken)
	return a
}

func (a *authService) getMetadataRepo() *metadata.SQLiteRepository {
	return metadata.NewSQLiteRepository(a.db)
}

func (a *authService) Register(ctx context.Context, username, email string, password []byte) (*api.User, error) {
	defer common.WipeByteArray(password)

	if _, err := a.client.Register(ctx, username, email, string(password), ""); err != nil {
		return nil, fmt.Errorf("register error: %w", err)
	}

	return a.login(ctx, email, string(password))
}

func (a *authService) Login(ctx context.Context, email string, password []byte) (*api.User, error) {
	defer common.WipeByteArray(password)
	return a.login(ctx, email, string(password))
}

func (a *authService) login(ctx context.Context, email, password string) (*api.User, error) {
	user, err := a.client.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}

	user, err = a.publishKey(ctx, user)
	if err != nil {
		return nil, err
	}

	_, refresh := a.client.Tokens()
	if err := a.saveSession(ctx, user.ID, refresh); err != nil {
		return nil, fmt.Errorf("session saving error: %w", err)
	}
	return user, nil
}

// Resume rotates the saved refresh token and loads the profile it belongs
// to. Without a saved session it returns client.ErrLocalDataNotAvailable;
// an expired one is discarded.
func (a *authService) Resume(ctx context.Context) (*api.User, error) {
	refresh, err := a.getMetadataRepo().Get(ctx, metaRefreshToken)
	if err != nil {
		return nil, err
	}
	if len(refresh) == 0 {
		return nil, client.ErrLocalDataNotAvailable
	}

	a.client.SetTokens("", string(refresh))
	if err := a.client.Refresh(ctx); err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			a.client.ClearTokens()
			if derr := a.clearSession(ctx); derr != nil {
				a.logger.Warn(ctx, "failed to discard expired session", "error", derr)
			}
		}
		return nil, fmt.Errorf("resume session: %w", err)
	}

	user, err := a.client.CheckAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}
	return a.publishKey(ctx, user)
}

// publishKey makes sure the server advertises this device's public key so
// peers encrypt to a key this device can read.
func (a *authService) publishKey(ctx context.Context, user *api.User) (*api.User, error) {
	pub, err := a.keys.PublicKey(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("device key: %w", err)
	}
	if pub == user.EncryptionPublicKey {
		return user, nil
	}

	updated, err := a.client.UpdateProfile(ctx, &api.UpdateProfileRequest{EncryptionPublicKey: &pub})
	if err != nil {
		return nil, fmt.Errorf("publish public key: %w", err)
	}
	a.logger.Info(ctx, "published device public key", "user_id", user.ID)
	return updated, nil
}

func (a *authService) saveSession(ctx context.Context, userID, refresh string) error {
	repo := a.getMetadataRepo()

	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := repo.WithDB(tx)
		if err := r.Set(ctx, metaUserID, []byte(userID)); err != nil {
			return err
		}
		return r.Set(ctx, metaRefreshToken, []byte(refresh))
	})
}

func (a *authService) clearSession(ctx context.Context) error {
	_, err := a.getMetadataRepo().DeletePrefix(ctx, metaSessionPrefix)
	return err
}

func (a *authService) persistRefreshToken(_ string, refresh string) {
	ctx := context.Background()
	if err := a.getMetadataRepo().Set(ctx, metaRefreshToken, []byte(refresh)); err != nil {
		a.logger.Warn(ctx, "failed to persist rotated refresh token", "error", err)
	}
}

func (a *authService) Logout(ctx context.Context) error {
	a.client.ClearTokens()
	return a.clearSession(ctx)
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// Close releases resources held by the underlying client.
func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}
