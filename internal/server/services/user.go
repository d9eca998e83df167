// Package services holds the server's business logic. UserService covers
// accounts: signup, login, token refresh, profile updates and the sidebar
// listing.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
)

const (
	minPasswordLength = 6
	minUsernameLength = 3
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegisterInput is the signup form.
type RegisterInput struct {
	Username            string
	Email               string
	Password            string
	EncryptionPublicKey string
}

type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", common.ErrorValidation, msg)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. The email is stored lowercased and must be
// unique; the password must have at least six characters.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, validationError("all fields are required")
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, validationError("username is required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, validationError("password must be at least 6 characters")
	}
	email := normalizeEmail(in.Email)

	repo := s.repomanager.Users(s.db)

	if _, err := repo.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already exists", common.ErrorAlreadyExists)
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error checking email: %w", err)
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	u, err := repo.Create(ctx, &models.User{
		Username:            username,
		Email:               email,
		PasswordHash:        hash,
		EncryptionPublicKey: strings.TrimSpace(in.EncryptionPublicKey),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// Login checks the credentials and issues a token pair. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, *models.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, nil, validationError("email and password are required")
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, common.ErrorInternal
	}

	ok, err := cryptox.VerifyPassword(user.PasswordHash, password)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}
	if !ok {
		return nil, nil, common.ErrorUnauthorized
	}

	pair, err := s.generateTokenPair(ctx, user.ID, s.db)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// RefreshToken exchanges a refresh token for a new pair. The old token is
// consumed in the same transaction that stores its replacement, so a token
// works once even under concurrent use.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return dbx.WithTxResult(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*TokenPair, error) {
		token, err := s.repomanager.RefreshTokens(tx).Consume(ctx, refreshToken)
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
		}
		if token.Expires.Before(time.Now()) {
			return nil, common.ErrRefreshTokenExpired
		}
		return s.generateTokenPair(ctx, token.UserID, tx)
	})
}

// PurgeExpiredTokens deletes refresh tokens past their expiry.
func (s *UserService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, time.Now())
}

// GetUser returns common.ErrorNotFound for unknown IDs.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, id)
}

// UpdateProfile applies the non-nil fields of upd. A username must have at
// least three characters and not belong to someone else; a public key is
// trimmed and ignored when blank. An update that ends up changing nothing
// is rejected.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	clean := models.ProfileUpdate{}

	if upd.ProfilePic != nil && *upd.ProfilePic != "" {
		clean.ProfilePic = upd.ProfilePic
	}

	if upd.Username != nil && *upd.Username != "" {
		name := strings.TrimSpace(*upd.Username)
		if len(name) < minUsernameLength {
			return nil, validationError("username must be at least 3 characters")
		}
		taken, err := repo.UsernameTaken(ctx, name, userID)
		if err != nil {
			return nil, fmt.Errorf("error checking username: %w", err)
		}
		if taken {
			return nil, fmt.Errorf("%w: username already taken", common.ErrorAlreadyExists)
		}
		clean.Username = &name
	}

	if upd.EncryptionPublicKey != nil {
		if key := strings.TrimSpace(*upd.EncryptionPublicKey); key != "" {
			clean.EncryptionPublicKey = &key
		}
	}

	if clean.Empty() {
		return nil, validationError("no valid fields to update")
	}

	u, err := repo.UpdateProfile(ctx, userID, clean)
	if err != nil {
		return nil, fmt.Errorf("error updating profile: %w", err)
	}
	return u, nil
}

// Sidebar lists every other user with the latest message exchanged with
// them.
func (s *UserService) Sidebar(ctx context.Context, userID string) ([]models.SidebarEntry, error) {
	users, err := s.repomanager.Users(s.db).ListExcept(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	last, err := s.repomanager.Messages(s.db).LastMessages(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading last messages: %w", err)
	}

	out := make([]models.SidebarEntry, 0, len(users))
	for _, u := range users {
		out = append(out, models.SidebarEntry{User: u, LastMessage: last[u.ID]})
	}
	return out, nil
}

func (s *UserService) generateTokenPair(ctx context.Context, userID string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, userID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
