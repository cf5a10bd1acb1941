package transcript

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewStore picks a backend from the URL scheme. An empty URL keeps the archive in memory.
//
//	postgres://, postgresql://  PostgreSQL
//	redis://, rediss://         Redis lists
//	sqlite://<path>, file:<path> SQLite
func NewStore(ctx context.Context, rawURL string) (Store, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return NewInMemoryStore(), nil
	}
	scheme, err := schemeOf(rawURL)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, rawURL)
	case "redis", "rediss":
		return NewRedisStore(ctx, rawURL)
	case "sqlite":
		return NewSQLiteStore(ctx, strings.TrimPrefix(rawURL, "sqlite://"))
	case "file":
		return NewSQLiteStore(ctx, rawURL)
	case "memory":
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported transcript store scheme %q", scheme)
	}
}

func schemeOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse transcript url: %w", err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("transcript url %q has no scheme", rawURL)
	}
	return strings.ToLower(u.Scheme), nil
}

// fill assigns defaults a backend needs before writing.
func fill(record *Record) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
}
