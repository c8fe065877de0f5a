package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// FirstBookmark records the earliest bookmark creation time seen for a user.
type FirstBookmark struct {
	Username string `json:"username" dynamodbav:"username"`
	Created  int64  `json:"created" dynamodbav:"created"` // epoch millis
}

// FirstBookmarkStore persists FirstBookmark records.
type FirstBookmarkStore interface {
	// Get returns the record of a user or ErrNotFound.
	Get(ctx context.Context, username string) (FirstBookmark, error)

	// Record stores fb unless an earlier creation time is already stored.
	Record(ctx context.Context, fb FirstBookmark) error
}

// ObjectFirstBookmarkStore keeps first-bookmark records in an ObjectStore at
// FirstBookmarkKey. The read-compare-write in Record is not atomic.
type ObjectFirstBookmarkStore struct {
	store ObjectStore
}

// NewObjectFirstBookmarkStore creates a store on top of an object store.
func NewObjectFirstBookmarkStore(store ObjectStore) *ObjectFirstBookmarkStore {
	return &ObjectFirstBookmarkStore{store: store}
}

// Get implements FirstBookmarkStore.
func (s *ObjectFirstBookmarkStore) Get(ctx context.Context, username string) (FirstBookmark, error) {
	data, err := s.store.Get(ctx, FirstBookmarkKey(username))
	if err != nil {
		return FirstBookmark{}, err
	}

	var fb FirstBookmark
	if err := json.Unmarshal(data, &fb); err != nil {
		return FirstBookmark{}, fmt.Errorf("decode first bookmark of %s: %w", username, err)
	}
	return fb, nil
}

// Record implements FirstBookmarkStore.
func (s *ObjectFirstBookmarkStore) Record(ctx context.Context, fb FirstBookmark) error {
	existing, err := s.Get(ctx, fb.Username)
	switch {
	case err == nil:
		if existing.Created <= fb.Created {
			return nil
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}

	data, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("encode first bookmark: %w", err)
	}
	return s.store.Put(ctx, FirstBookmarkKey(fb.Username), data)
}
