// Package cmd implements the command-line modes of the mixplay binary: short-code login,
// token refresh, logout and play.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/router-for-me/MixPlay/internal/config"
	"github.com/router-for-me/MixPlay/internal/misc"
	"github.com/router-for-me/MixPlay/internal/store"
	"github.com/router-for-me/MixPlay/sdk/mixplay"
)

// LoginOptions contains options for the login flow.
type LoginOptions struct {
	// NoBrowser indicates whether to skip opening the browser automatically.
	NoBrowser bool
	// Out receives the short code and QR code. Defaults to stdout.
	Out io.Writer
}

// TokenTarget names where the token blob is persisted.
type TokenTarget struct {
	Store store.BlobStore
	Key   string
}

func (t TokenTarget) location() string {
	if t.Store == nil {
		return ""
	}
	return t.Store.Location(t.Key)
}

func (t TokenTarget) load(ctx context.Context) (string, error) {
	if t.Store == nil {
		return "", fmt.Errorf("no token store configured")
	}
	blob, err := t.Store.Load(ctx, t.Key)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("no saved credentials at %s, run with -login first", t.location())
	}
	return blob, err
}

func (t TokenTarget) save(ctx context.Context, blob string) error {
	if t.Store == nil {
		return fmt.Errorf("no token store configured")
	}
	if blob == "" {
		return fmt.Errorf("no token to save")
	}
	misc.LogSavingCredentials(t.location())
	return t.Store.Save(ctx, t.Key, blob)
}

func writerOrStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

// newClient builds the SDK client for cfg. Tests swap it to inject options.
var newClient = func(cfg *config.Config, handlers mixplay.Handlers, opts ...mixplay.Option) (*mixplay.Client, error) {
	return mixplay.NewFromConfig(cfg, handlers, opts...)
}
