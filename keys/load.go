package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ParsePEM parses a PKCS#1 or PKCS#8 RSA private key.
func ParsePEM(data []byte) (KeyPair, error) {
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return KeyPair{}, fmt.Errorf("parse rsa private key: %w", err)
	}
	return NewKeyPair(priv)
}

// LoadDir reads every *.pem file in dir as a key pair.
func LoadDir(dir string) ([]KeyPair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read key dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pem") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	pairs := make([]KeyPair, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		kp, err := ParsePEM(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		pairs = append(pairs, kp)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoKeys, dir)
	}
	return pairs, nil
}

// EncodePEM renders a private key as a PKCS#1 PEM block.
func EncodePEM(priv *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
}
