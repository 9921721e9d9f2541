// Package kv is the key-value persistence port used for per-user documents
// (profile, favorites, cart, listing draft, saved card, chat settings).
// Writes are plain overwrites: last write wins, no transactions.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("kv: key not found")
	ErrQuotaExceeded = errors.New("kv: quota exceeded")
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Doc names a logical document. Keys mirror the storage names of the web client.
type Doc string

const (
	DocProfile      Doc = "bridgeMe_user_profile"
	DocFavorites    Doc = "bridgeMe_favorites"
	DocCart         Doc = "bridgeMe_cart_items"
	DocDraft        Doc = "bridgeMe_listing_draft"
	DocSavedCard    Doc = "bridgeMe_saved_card"
	DocChatSettings Doc = "bridgeMe_chat_settings"
)

// Key scopes a document to one user.
func Key(doc Doc, userID string) string {
	return string(doc) + ":" + userID
}

// Load decodes the document into out. It returns false when nothing is stored.
func Load[T any](ctx context.Context, s Store, doc Doc, userID string, out *T) (bool, error) {
	raw, err := s.Get(ctx, Key(doc, userID))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", doc, err)
	}
	return true, nil
}

// Save overwrites the document.
func Save[T any](ctx context.Context, s Store, doc Doc, userID string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", doc, err)
	}
	return s.Set(ctx, Key(doc, userID), raw)
}

// Remove deletes the document. Removing a missing document is not an error.
func Remove(ctx context.Context, s Store, doc Doc, userID string) error {
	err := s.Delete(ctx, Key(doc, userID))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

type quotaStore struct {
	Store
	max int
}

// WithQuota rejects values larger than max bytes with ErrQuotaExceeded,
// the way a browser rejects an oversized localStorage write.
func WithQuota(s Store, max int) Store {
	if max <= 0 {
		return s
	}
	return &quotaStore{Store: s, max: max}
}

func (q *quotaStore) Set(ctx context.Context, key string, value []byte) error {
	if len(value) > q.max {
		return fmt.Errorf("%w: %d bytes > %d", ErrQuotaExceeded, len(value), q.max)
	}
	return q.Store.Set(ctx, key, value)
}
