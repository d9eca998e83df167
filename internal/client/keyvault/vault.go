// Package keyvault keeps the device's long-lived E2EE key pair for each
// user who signs in on it.
//
// Pairs are stored as JSON under "chatter:e2ee:<userID>" in a key-value
// Store (the client metadata repository). They never expire and are never
// rotated. A stored value that no longer parses is discarded and replaced,
// which leaves messages encrypted to the old key undecryptable.
package keyvault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

const storageKeyPrefix = "chatter:e2ee:"

// Store is the subset of the metadata repository the vault needs.
// Get returns (nil, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type Vault struct {
	store    Store
	logger   logging.Logger
	generate func() (*cryptox.KeyPair, error)

	// serialises EnsureKeyPair so concurrent callers never persist two
	// different pairs for the same user
	mu sync.Mutex
}

func New(store Store, l logging.Logger) *Vault {
	return &Vault{
		store:    store,
		logger:   l.With("module", "keyvault"),
		generate: cryptox.GenerateKeyPair,
	}
}

// StorageKey returns the store key holding userID's pair.
func StorageKey(userID string) string {
	return storageKeyPrefix + userID
}

// EnsureKeyPair returns the stored pair for userID, creating and persisting
// a fresh one when none is stored or the stored value is unusable.
func (v *Vault) EnsureKeyPair(ctx context.Context, userID string) (*cryptox.KeyPair, error) {
	if userID == "" {
		return nil, common.ErrMissingUserID
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	key := StorageKey(userID)

	raw, err := v.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}

	if raw != nil {
		kp, err := decode(raw)
		if err == nil {
			return kp, nil
		}
		v.logger.Warn(ctx, "stored key pair is corrupt, generating a new one; earlier messages will not decrypt",
			"user_id", userID, "error", err)
		if err := v.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("discard corrupt key pair: %w", err)
		}
	}

	kp, err := v.generate()
	if err != nil {
		if !errors.Is(err, common.ErrCryptoUnavailable) {
			err = fmt.Errorf("%w: %v", common.ErrCryptoUnavailable, err)
		}
		return nil, err
	}

	data, err := json.Marshal(kp)
	if err != nil {
		return nil, fmt.Errorf("encode key pair: %w", err)
	}
	if err := v.store.Set(ctx, key, data); err != nil {
		return nil, fmt.Errorf("save key pair: %w", err)
	}

	v.logger.Info(ctx, "generated device key pair", "user_id", userID)
	return kp, nil
}

// PublicKey is EnsureKeyPair reduced to the string published in the
// user's profile.
func (v *Vault) PublicKey(ctx context.Context, userID string) (string, error) {
	kp, err := v.EnsureKeyPair(ctx, userID)
	if err != nil {
		return "", err
	}
	return kp.PublicKey(), nil
}

func decode(raw []byte) (*cryptox.KeyPair, error) {
	var kp cryptox.KeyPair
	if err := json.Unmarshal(raw, &kp); err != nil {
		return nil, err
	}
	if err := kp.Validate(); err != nil {
		return nil, err
	}
	return &kp, nil
}
