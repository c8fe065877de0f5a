// Package api serves the HTTP API in front of the gatherer and the stores.
package api

import (
	"context"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/pkg/cache"
	"github.com/Sternrassler/hatebu-galaxy/pkg/gather"
	"github.com/Sternrassler/hatebu-galaxy/pkg/hatena"
	"github.com/Sternrassler/hatebu-galaxy/pkg/storage"
	"github.com/rs/zerolog"
)

// Gatherer runs passes and reports user state.
type Gatherer interface {
	Gather(ctx context.Context, username string, startPage, pageCount int) gather.Result
	State(ctx context.Context, username string) (gather.State, error)
}

// Lister lists object keys under a prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// FileReader reads stored objects, usually through the edge cache.
type FileReader interface {
	Get(ctx context.Context, key string) (*cache.Entry, error)
}

// UserFetcher looks up upstream user profiles.
type UserFetcher interface {
	FetchUserInfo(ctx context.Context, username string) (*hatena.UserInfo, error)
}

// Deps are the shared dependencies of all handlers.
type Deps struct {
	Logger         zerolog.Logger
	StartTime      time.Time
	Version        string
	Gatherer       Gatherer
	Objects        Lister
	Files          FileReader
	Users          UserFetcher
	FirstBookmarks storage.FirstBookmarkStore
	PageChunk      int           // default pageChunk for /api/gather
	MaxPageChunk   int           // largest pageChunk accepted
	RequestTimeout time.Duration // 0 disables the per-request timeout
}
