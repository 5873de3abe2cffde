package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested")
	s := NewFileStore(dir)

	if _, err := s.Load(ctx, DefaultKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load on empty store = %v, want ErrNotFound", err)
	}

	blob := `{"refresh_token":"r","access_token":"a"}`
	if err := s.Save(ctx, DefaultKey, blob); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, DefaultKey)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != blob {
		t.Fatalf("Load = %q, want %q", got, blob)
	}

	info, err := os.Stat(filepath.Join(dir, DefaultKey))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}

	if err = s.Save(ctx, DefaultKey, "second"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, _ = s.Load(ctx, DefaultKey); got != "second" {
		t.Fatalf("Load after overwrite = %q", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the token file, found %d entries", len(entries))
	}

	if err = s.Delete(ctx, DefaultKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err = s.Delete(ctx, DefaultKey); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err = s.Load(ctx, DefaultKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after delete = %v", err)
	}
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	t.Parallel()
	s := NewFileStore(t.TempDir())
	for _, key := range []string{"", "  ", "../outside.json"} {
		if err := s.Save(context.Background(), key, "x"); err == nil {
			t.Fatalf("Save(%q) succeeded, want error", key)
		}
	}
}

func TestFileStoreCancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewFileStore(t.TempDir())
	if err := s.Save(ctx, DefaultKey, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Save = %v, want context.Canceled", err)
	}
}

func TestNewFileStoreForPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, key := NewFileStoreForPath(filepath.Join(dir, "auth.json"))
	if key != "auth.json" {
		t.Fatalf("key = %q", key)
	}
	if got := s.Location(key); got != filepath.Join(dir, "auth.json") {
		t.Fatalf("Location = %q", got)
	}
}

func TestOpenSelection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "token.json")
	s, key, err := Open(ctx, Selection{TokenFile: path})
	if err != nil {
		t.Fatalf("Open file: %v", err)
	}
	if _, ok := s.(*FileStore); !ok || key != "token.json" {
		t.Fatalf("Open file = %T %q", s, key)
	}

	s, key, err = Open(ctx, Selection{
		Object: &ObjectStoreConfig{
			Endpoint:  "localhost:9000",
			Bucket:    "tokens",
			AccessKey: "access",
			SecretKey: "secret",
			Prefix:    "/mixplay/",
		},
		TokenFile: path,
	})
	if err != nil {
		t.Fatalf("Open object: %v", err)
	}
	obj, ok := s.(*ObjectStore)
	if !ok || key != DefaultKey {
		t.Fatalf("Open object = %T %q", s, key)
	}
	if got := obj.Location(key); got != "s3://tokens/mixplay/auth.json" {
		t.Fatalf("Location = %q", got)
	}

	if _, _, err = Open(ctx, Selection{}); err == nil {
		t.Fatalf("Open with nothing configured succeeded")
	}
}

func TestNewObjectStoreValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  ObjectStoreConfig
	}{
		{"missing endpoint", ObjectStoreConfig{Bucket: "b", AccessKey: "a", SecretKey: "s"}},
		{"missing bucket", ObjectStoreConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}},
		{"missing keys", ObjectStoreConfig{Endpoint: "localhost:9000", Bucket: "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewObjectStore(tt.cfg); err == nil {
				t.Fatalf("NewObjectStore succeeded")
			}
		})
	}
}

func TestObjectStorePrefixedKey(t *testing.T) {
	t.Parallel()
	s := &ObjectStore{cfg: ObjectStoreConfig{Bucket: "b"}}
	if got := s.prefixedKey("/auth.json"); got != "auth.json" {
		t.Fatalf("prefixedKey without prefix = %q", got)
	}
	s.cfg.Prefix = "team"
	if got := s.prefixedKey("auth.json"); got != "team/auth.json" {
		t.Fatalf("prefixedKey = %q", got)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	t.Parallel()
	if got := quoteIdentifier(`to"ken`); got != `"to""ken"` {
		t.Fatalf("quoteIdentifier = %s", got)
	}
	s := &PostgresStore{cfg: PostgresStoreConfig{Schema: "mix", Table: "token_store"}}
	if got := s.tableName(); got != `"mix"."token_store"` {
		t.Fatalf("tableName = %s", got)
	}
	if got := s.Location("auth.json"); got != "postgres://mix.token_store#auth.json" {
		t.Fatalf("Location = %s", got)
	}
}

func TestNewPostgresStoreRequiresDSN(t *testing.T) {
	t.Parallel()
	if _, err := NewPostgresStore(context.Background(), PostgresStoreConfig{DSN: "  "}); err == nil {
		t.Fatalf("NewPostgresStore without DSN succeeded")
	}
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("MIXPLAY_TEST_PGSTORE_DSN")
	if dsn == "" {
		t.Skip("MIXPLAY_TEST_PGSTORE_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, PostgresStoreConfig{DSN: dsn, Table: "token_store_test"})
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err = s.Save(ctx, "round-trip", "one"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err = s.Save(ctx, "round-trip", "two"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.Load(ctx, "round-trip")
	if err != nil || got != "two" {
		t.Fatalf("Load = %q, %v", got, err)
	}
	if err = s.Delete(ctx, "round-trip"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err = s.Load(ctx, "round-trip"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after delete = %v", err)
	}
}
