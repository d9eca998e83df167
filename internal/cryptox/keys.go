package cryptox

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
)

const (
	jwkKeyType = "EC"
	jwkCurve   = "P-256"

	coordSize = 32
)

// generatePrivateKey and readRandom are replaced in tests to simulate a
// missing entropy source.
var (
	generatePrivateKey = func() (*ecdh.PrivateKey, error) {
		return ecdh.P256().GenerateKey(rand.Reader)
	}
	readRandom = rand.Read
)

// JWK is an elliptic-curve JSON Web Key. D is set only on private keys.
type JWK struct {
	Kty    string   `json:"kty"`
	Crv    string   `json:"crv"`
	X      string   `json:"x"`
	Y      string   `json:"y"`
	D      string   `json:"d,omitempty"`
	Ext    *bool    `json:"ext,omitempty"`
	KeyOps []string `json:"key_ops,omitempty"`
}

// KeyPair is a device's long-lived ECDH P-256 identity for one user.
type KeyPair struct {
	PublicJWK  JWK `json:"publicJwk"`
	PrivateJWK JWK `json:"privateJwk"`
}

// PublicKey returns the compact JSON form of the public JWK. This is the
// string published through the user's profile.
func (kp *KeyPair) PublicKey() string {
	b, _ := json.Marshal(kp.PublicJWK)
	return string(b)
}

// Validate reports whether both halves parse and belong together.
func (kp *KeyPair) Validate() error {
	priv, err := kp.PrivateJWK.privateKey()
	if err != nil {
		return err
	}
	pub, err := kp.PublicJWK.publicKey()
	if err != nil {
		return err
	}
	if !priv.PublicKey().Equal(pub) {
		return errors.New("public key does not match private key")
	}
	return nil
}

// GenerateKeyPair creates a fresh P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := generatePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCryptoUnavailable, err)
	}

	pub := publicJWK(priv.PublicKey())
	private := pub
	private.D = b64url(priv.Bytes())

	return &KeyPair{PublicJWK: pub, PrivateJWK: private}, nil
}

// ParsePublicKey decodes the JSON form produced by KeyPair.PublicKey.
func ParsePublicKey(s string) (JWK, error) {
	var k JWK
	if s == "" {
		return k, fmt.Errorf("%w: empty key", common.ErrInvalidPeerKey)
	}
	if err := json.Unmarshal([]byte(s), &k); err != nil {
		return k, fmt.Errorf("%w: %v", common.ErrInvalidPeerKey, err)
	}
	if _, err := k.publicKey(); err != nil {
		return k, fmt.Errorf("%w: %v", common.ErrInvalidPeerKey, err)
	}
	return k, nil
}

func publicJWK(pub *ecdh.PublicKey) JWK {
	// uncompressed point: 0x04 || X || Y
	raw := pub.Bytes()
	return JWK{
		Kty: jwkKeyType,
		Crv: jwkCurve,
		X:   b64url(raw[1 : 1+coordSize]),
		Y:   b64url(raw[1+coordSize:]),
	}
}

func (k JWK) checkCurve() error {
	if k.Kty != jwkKeyType || k.Crv != jwkCurve {
		return fmt.Errorf("unsupported key type %q/%q", k.Kty, k.Crv)
	}
	return nil
}

func (k JWK) publicKey() (*ecdh.PublicKey, error) {
	if err := k.checkCurve(); err != nil {
		return nil, err
	}
	x, err := decodeCoord(k.X)
	if err != nil {
		return nil, fmt.Errorf("x: %w", err)
	}
	y, err := decodeCoord(k.Y)
	if err != nil {
		return nil, fmt.Errorf("y: %w", err)
	}

	point := make([]byte, 0, 1+2*coordSize)
	point = append(point, 4)
	point = append(point, x...)
	point = append(point, y...)

	return ecdh.P256().NewPublicKey(point)
}

func (k JWK) privateKey() (*ecdh.PrivateKey, error) {
	if err := k.checkCurve(); err != nil {
		return nil, err
	}
	if k.D == "" {
		return nil, errors.New("not a private key")
	}
	d, err := decodeCoord(k.D)
	if err != nil {
		return nil, fmt.Errorf("d: %w", err)
	}
	defer common.WipeByteArray(d)

	priv, err := ecdh.P256().NewPrivateKey(d)
	if err != nil {
		return nil, err
	}

	if k.X != "" || k.Y != "" {
		pub, err := k.publicKey()
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(priv.PublicKey().Bytes(), pub.Bytes()) {
			return nil, errors.New("private key does not match its public coordinates")
		}
	}
	return priv, nil
}

func decodeCoord(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != coordSize {
		return nil, fmt.Errorf("want %d bytes, got %d", coordSize, len(b))
	}
	return b, nil
}

func b64url(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
