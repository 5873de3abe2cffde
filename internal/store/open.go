package store

import (
	"context"
	"fmt"
	"strings"
)

// Selection chooses the backend for the token blob. Postgres wins over Object, and the
// token file is used when neither is configured.
type Selection struct {
	Postgres  *PostgresStoreConfig
	Object    *ObjectStoreConfig
	TokenFile string
}

// Open builds the selected backend and returns it with the key the blob lives under.
func Open(ctx context.Context, sel Selection) (BlobStore, string, error) {
	switch {
	case sel.Postgres != nil && strings.TrimSpace(sel.Postgres.DSN) != "":
		s, err := NewPostgresStore(ctx, *sel.Postgres)
		if err != nil {
			return nil, "", err
		}
		return s, DefaultKey, nil
	case sel.Object != nil && strings.TrimSpace(sel.Object.Endpoint) != "":
		s, err := NewObjectStore(*sel.Object)
		if err != nil {
			return nil, "", err
		}
		return s, DefaultKey, nil
	case strings.TrimSpace(sel.TokenFile) != "":
		s, key := NewFileStoreForPath(sel.TokenFile)
		return s, key, nil
	default:
		return nil, "", fmt.Errorf("store: no token store configured")
	}
}
