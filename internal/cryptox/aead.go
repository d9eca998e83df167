package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
)

const (
	symmetricKeySize = 32
	nonceSize        = 12
)

// SymmetricKey is the AES-256-GCM conversation key shared by two users.
// It is derived on demand and never stored.
type SymmetricKey struct {
	raw []byte
}

// Bytes exposes the raw key material.
func (k SymmetricKey) Bytes() []byte {
	return k.raw
}

// DeriveSharedKey runs ECDH between our private key and the peer's public
// key and uses the 32-byte shared secret directly as the AES-256 key, the
// same derivation a browser gets from WebCrypto deriveKey. The result is
// the same whichever side computes it.
//
// Both the private JWK and the peer key (the JSON string from its profile)
// must be P-256 keys; a malformed peer key yields ErrInvalidPeerKey.
func DeriveSharedKey(myPrivate JWK, peerPublicKey string) (SymmetricKey, error) {
	priv, err := myPrivate.privateKey()
	if err != nil {
		return SymmetricKey{}, fmt.Errorf("import private key: %w", err)
	}

	peer, err := ParsePublicKey(peerPublicKey)
	if err != nil {
		return SymmetricKey{}, err
	}
	pub, err := peer.publicKey()
	if err != nil {
		return SymmetricKey{}, fmt.Errorf("%w: %v", common.ErrInvalidPeerKey, err)
	}

	secret, err := priv.ECDH(pub)
	if err != nil {
		return SymmetricKey{}, fmt.Errorf("%w: %v", common.ErrInvalidPeerKey, err)
	}

	return SymmetricKey{raw: secret}, nil
}

func (k SymmetricKey) aead() (cipher.AEAD, error) {
	if len(k.raw) != symmetricKeySize {
		return nil, errors.New("symmetric key not initialised")
	}
	block, err := aes.NewCipher(k.raw)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptText seals plaintext under key with a fresh random 12-byte IV.
// Both values are returned in padded standard base64. An empty plaintext
// returns two empty strings without touching the cipher.
func EncryptText(key SymmetricKey, plaintext string) (cipherText, iv string, err error) {
	if plaintext == "" {
		return "", "", nil
	}

	aesgcm, err := key.aead()
	if err != nil {
		return "", "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := readRandom(nonce); err != nil {
		return "", "", fmt.Errorf("%w: %v", common.ErrCryptoUnavailable, err)
	}

	sealed := aesgcm.Seal(nil, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), base64.StdEncoding.EncodeToString(nonce), nil
}

// DecryptText reverses EncryptText. Any authentication or decoding
// failure is reported as ErrDecryptionFailed.
func DecryptText(key SymmetricKey, cipherText, iv string) (string, error) {
	if cipherText == "" {
		return "", nil
	}

	aesgcm, err := key.aead()
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}

	sealed, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", common.ErrDecryptionFailed, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", common.ErrDecryptionFailed, err)
	}
	if len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: iv must be %d bytes", common.ErrDecryptionFailed, nonceSize)
	}

	plaintext, err := aesgcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}
