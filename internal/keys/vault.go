package keys

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/suPer8Hu/agentk/internal/store"
)

var (
	ErrNoSecret    = errors.New("keys: vault secret is not configured")
	ErrKeyNotFound = errors.New("keys: provider key not found")
	ErrCorrupt     = errors.New("keys: sealed key cannot be opened")
	ErrInvalidKey  = errors.New("keys: provider id and key are required")
)

const (
	nonceSize = 24
	salt      = "agentk/provider-keys/v1"
)

// Entry is the listing view of a stored key. It never carries key material.
type Entry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Updated int64  `json:"updated"`
}

// Vault stores provider API keys sealed with a key derived from a passphrase.
type Vault struct {
	store *store.Store
	key   *[32]byte
	now   func() time.Time
}

// NewVault derives the sealing key from secret. An empty secret yields a
// vault that can list and remove entries but not save or open them.
func NewVault(st *store.Store, secret string) (*Vault, error) {
	v := &Vault{store: st, now: time.Now}
	if strings.TrimSpace(secret) == "" {
		return v, nil
	}
	dk, err := scrypt.Key([]byte(secret), []byte(salt), 1<<15, 8, 1, 32)
	if err != nil {
		return nil, err
	}
	v.key = new([32]byte)
	copy(v.key[:], dk)
	return v, nil
}

func (v *Vault) Save(ctx context.Context, id, apiKey, name string) (Entry, error) {
	id = strings.TrimSpace(id)
	apiKey = strings.TrimSpace(apiKey)
	if id == "" || apiKey == "" {
		return Entry{}, ErrInvalidKey
	}
	if v.key == nil {
		return Entry{}, ErrNoSecret
	}
	sealed, err := v.seal([]byte(apiKey))
	if err != nil {
		return Entry{}, err
	}
	rec := &store.ProviderKey{
		ID:      id,
		Name:    strings.TrimSpace(name),
		Sealed:  sealed,
		Updated: v.now().UnixMilli(),
	}
	if err := v.store.PutProviderKey(ctx, rec); err != nil {
		return Entry{}, err
	}
	return Entry{ID: rec.ID, Name: rec.Name, Updated: rec.Updated}, nil
}

// Get returns the plaintext key for a provider.
func (v *Vault) Get(ctx context.Context, id string) (string, error) {
	if v.key == nil {
		return "", ErrNoSecret
	}
	rec, err := v.store.GetProviderKey(ctx, strings.TrimSpace(id))
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	plain, err := v.open(rec.Sealed)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (v *Vault) Remove(ctx context.Context, id string) (bool, error) {
	n, err := v.store.DeleteProviderKey(ctx, strings.TrimSpace(id))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (v *Vault) List(ctx context.Context) ([]Entry, error) {
	recs, err := v.store.ListProviderKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(recs))
	for _, r := range recs {
		out = append(out, Entry{ID: r.ID, Name: r.Name, Updated: r.Updated})
	}
	return out, nil
}

func (v *Vault) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plain, &nonce, v.key), nil
}

func (v *Vault) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrCorrupt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, v.key)
	if !ok {
		return nil, ErrCorrupt
	}
	return plain, nil
}
