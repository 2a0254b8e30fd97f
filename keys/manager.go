// Package keys owns the RSA key pairs used to sign access tokens and to
// encrypt opaque tokens. Several pairs may be loaded at once so new keys can
// be introduced without invalidating tokens issued under older ones.
package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"sort"
	"sync"

	"github.com/go-jose/go-jose/v4"
)

// MinKeyBits is the smallest RSA modulus accepted.
const MinKeyBits = 2048

// Algorithm is the JWS algorithm used with every key pair.
const Algorithm = "RS256"

var (
	// ErrUnknownKey is returned when no key pair carries the requested kid.
	ErrUnknownKey = errors.New("unknown key")
	// ErrNoKeys is returned when a manager is built without key pairs.
	ErrNoKeys = errors.New("no key pairs configured")
	// ErrWeakKey is returned for RSA keys below MinKeyBits.
	ErrWeakKey = errors.New("rsa key too small")
)

// KeyPair is an immutable RSA key pair and its identifier.
type KeyPair struct {
	ID         string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// NewKeyPair wraps priv, deriving the key id from the public key's
// RFC 7638 SHA-256 thumbprint.
func NewKeyPair(priv *rsa.PrivateKey) (KeyPair, error) {
	if priv == nil {
		return KeyPair{}, errors.New("nil private key")
	}
	if priv.N.BitLen() < MinKeyBits {
		return KeyPair{}, fmt.Errorf("%w: %d bits", ErrWeakKey, priv.N.BitLen())
	}
	kid, err := KeyID(&priv.PublicKey)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{ID: kid, PrivateKey: priv, PublicKey: &priv.PublicKey}, nil
}

// KeyID computes the deterministic identifier of a public key.
func KeyID(pub *rsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	tp, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}

// Generate creates a fresh key pair.
func Generate(bits int) (KeyPair, error) {
	if bits < MinKeyBits {
		return KeyPair{}, fmt.Errorf("%w: %d bits", ErrWeakKey, bits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate rsa key: %w", err)
	}
	return NewKeyPair(priv)
}

// Manager holds the active key set. It is safe for concurrent use; Add is
// visible to every later call.
type Manager struct {
	mu    sync.RWMutex
	pairs []KeyPair
	byID  map[string]KeyPair
}

// NewManager creates a manager over the given pairs.
func NewManager(pairs ...KeyPair) (*Manager, error) {
	if len(pairs) == 0 {
		return nil, ErrNoKeys
	}
	m := &Manager{byID: make(map[string]KeyPair, len(pairs))}
	for _, kp := range pairs {
		m.add(kp)
	}
	return m, nil
}

// Add introduces a key pair. Existing pairs stay available, so tokens
// signed under them keep verifying.
func (m *Manager) Add(kp KeyPair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(kp)
}

func (m *Manager) add(kp KeyPair) {
	if _, ok := m.byID[kp.ID]; ok {
		return
	}
	m.pairs = append(m.pairs, kp)
	m.byID[kp.ID] = kp
}

// SigningKey returns one key pair chosen pseudo-randomly among all pairs.
func (m *Manager) SigningKey() KeyPair {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pairs[mrand.IntN(len(m.pairs))]
}

// SigningKeyID returns the kid and private key of SigningKey.
func (m *Manager) SigningKeyID() (string, *rsa.PrivateKey) {
	kp := m.SigningKey()
	return kp.ID, kp.PrivateKey
}

// VerificationKey resolves the public key for kid.
func (m *Manager) VerificationKey(kid string) (*rsa.PublicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kp, ok := m.byID[kid]
	if !ok {
		return nil, ErrUnknownKey
	}
	return kp.PublicKey, nil
}

// DecryptionKey resolves the private key for kid.
func (m *Manager) DecryptionKey(kid string) (*rsa.PrivateKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kp, ok := m.byID[kid]
	if !ok {
		return nil, ErrUnknownKey
	}
	return kp.PrivateKey, nil
}

// KeyIDs lists the loaded key ids in sorted order.
func (m *Manager) KeyIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.pairs))
	for _, kp := range m.pairs {
		ids = append(ids, kp.ID)
	}
	sort.Strings(ids)
	return ids
}

// JWKS returns the public half of every loaded key.
func (m *Manager) JWKS() jose.JSONWebKeySet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(m.pairs))}
	for _, kp := range m.pairs {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       kp.PublicKey,
			KeyID:     kp.ID,
			Algorithm: Algorithm,
			Use:       "sig",
		})
	}
	return set
}
