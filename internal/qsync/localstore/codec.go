package localstore

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/crypto/chacha20poly1305"
)

// Codec is the reversible transform applied to serialized state before it
// reaches the medium.
type Codec interface {
	Encode(plain []byte) (string, error)
	Decode(stored string) ([]byte, error)
}

// ObfuscationCodec deters casual inspection of the stored blob. It is not
// encryption.
type ObfuscationCodec struct{}

func (ObfuscationCodec) Encode(plain []byte) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(url.QueryEscape(string(plain)))), nil
}

func (ObfuscationCodec) Decode(stored string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, err
	}
	plain, err := url.QueryUnescape(string(raw))
	if err != nil {
		return nil, err
	}
	return []byte(plain), nil
}

// SealedCodec authenticates and encrypts the blob with a per-device key.
type SealedCodec struct {
	key []byte
}

func NewSealedCodec(key []byte) (*SealedCodec, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("sealed codec: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &SealedCodec{key: k}, nil
}

func (c *SealedCodec) Encode(plain []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *SealedCodec) Decode(stored string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize() {
		return nil, errors.New("sealed codec: blob shorter than nonce")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}
