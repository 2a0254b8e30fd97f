package generates

import (
	"fmt"

	"github.com/go-jose/go-jose/v4"
	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/errors"
)

var (
	opaqueKeyAlgorithms      = []jose.KeyAlgorithm{jose.RSA_OAEP_256}
	opaqueContentEncryptions = []jose.ContentEncryption{jose.A256GCM}
)

// Token kinds written into the protected "typ" header. A token only decrypts
// with a codec of the same kind.
const (
	RefreshTokenType jose.ContentType = "oauth2-refresh+jwe"
	LoginSessionType jose.ContentType = "login-session+jwe"
)

// NewOpaqueGenerate create to generate the encrypted opaque token instance
func NewOpaqueGenerate(keys oauth2.KeySource, typ jose.ContentType) *OpaqueGenerate {
	return &OpaqueGenerate{Keys: keys, Type: typ}
}

// OpaqueGenerate wraps raw identifiers (refresh token ids, login session ids)
// into compact JWE tokens encrypted to one of the managed public keys.
type OpaqueGenerate struct {
	Keys oauth2.KeySource
	Type jose.ContentType
}

var _ oauth2.EncryptionService = (*OpaqueGenerate)(nil)

// Encrypt encrypts raw under a randomly selected key; the recipient kid is
// written into the protected header.
func (g *OpaqueGenerate) Encrypt(raw []byte) (string, error) {
	kid, key := g.Keys.SigningKeyID()
	enc, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{
		Algorithm: jose.RSA_OAEP_256,
		Key:       &key.PublicKey,
		KeyID:     kid,
	}, (&jose.EncrypterOptions{}).WithType(g.Type))
	if err != nil {
		return "", fmt.Errorf("jwe encrypter: %w", err)
	}
	obj, err := enc.Encrypt(raw)
	if err != nil {
		return "", fmt.Errorf("jwe encrypt: %w", err)
	}
	return obj.CompactSerialize()
}

// Decrypt returns the plaintext of token. Malformed input, a foreign token
// kind, unknown kid and failed decryption all yield errors.ErrInvalidOpaqueToken.
func (g *OpaqueGenerate) Decrypt(token string) ([]byte, error) {
	obj, err := jose.ParseEncryptedCompact(token, opaqueKeyAlgorithms, opaqueContentEncryptions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidOpaqueToken, err)
	}
	if typ, _ := obj.Header.ExtraHeaders[jose.HeaderType].(string); typ != string(g.Type) {
		return nil, fmt.Errorf("%w: unexpected typ %q", errors.ErrInvalidOpaqueToken, typ)
	}
	kid := obj.Header.KeyID
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid", errors.ErrInvalidOpaqueToken)
	}
	key, err := g.Keys.DecryptionKey(kid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidOpaqueToken, err)
	}
	raw, err := obj.Decrypt(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidOpaqueToken, err)
	}
	return raw, nil
}
