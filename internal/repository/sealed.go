package repository

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"vouchgraph/internal/domain"
)

const sealedPrefix = "sealed:v1:"

// ErrUnsealable means a stored token could not be decrypted with the key
var ErrUnsealable = errors.New("notification token cannot be unsealed")

// SealedStore encrypts tokens with XChaCha20-Poly1305 before they reach the
// wrapped store. The fid is bound as associated data, so a sealed token only
// opens under the fid it was saved for. Delivery URLs stay readable.
type SealedStore struct {
	TokenStore
	aead cipher.AEAD
}

// ParseKey decodes a hex-encoded 32 byte key
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("token key is not hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

// Seal wraps store so every token is encrypted under key
func Seal(store TokenStore, key []byte) (*SealedStore, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("token key: %w", err)
	}
	return &SealedStore{TokenStore: store, aead: aead}, nil
}

func (s *SealedStore) Save(ctx context.Context, fid string, info domain.NotificationInfo) error {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(info.Token)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(info.Token), []byte(fid))
	info.Token = sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed)
	return s.TokenStore.Save(ctx, fid, info)
}

// Get opens the stored token. Tokens saved before sealing was enabled are
// returned as stored.
func (s *SealedStore) Get(ctx context.Context, fid string) (*domain.NotificationInfo, error) {
	info, err := s.TokenStore.Get(ctx, fid)
	if err != nil || info == nil {
		return info, err
	}
	if !strings.HasPrefix(info.Token, sealedPrefix) {
		return info, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(info.Token, sealedPrefix))
	if err != nil || len(raw) < s.aead.NonceSize() {
		return nil, fmt.Errorf("%w: fid %s: malformed", ErrUnsealable, fid)
	}
	nonce, box := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	token, err := s.aead.Open(nil, nonce, box, []byte(fid))
	if err != nil {
		return nil, fmt.Errorf("%w: fid %s", ErrUnsealable, fid)
	}
	info.Token = string(token)
	return info, nil
}
