package cmd

import (
	"context"
	"fmt"

	"github.com/router-for-me/MixPlay/internal/config"
	"github.com/router-for-me/MixPlay/sdk/mixplay"
)

// DoRefresh exchanges the saved refresh token for a new one and saves it back.
func DoRefresh(ctx context.Context, cfg *config.Config, tokens TokenTarget) {
	if err := runRefresh(ctx, cfg, tokens); err != nil {
		fmt.Printf("Token refresh failed: %v\n", err)
		return
	}
	fmt.Println("Token refreshed.")
}

func runRefresh(ctx context.Context, cfg *config.Config, tokens TokenTarget) error {
	client, err := newClient(cfg, mixplay.Handlers{})
	if err != nil {
		return err
	}
	_, err = restoreToken(ctx, client, tokens)
	return err
}

// restoreToken loads the saved blob, refreshes it through SetToken and persists the
// refreshed blob, since the old refresh token is no longer valid afterwards.
func restoreToken(ctx context.Context, client *mixplay.Client, tokens TokenTarget) (string, error) {
	blob, err := tokens.load(ctx)
	if err != nil {
		return "", err
	}
	if err = client.SetToken(ctx, blob); err != nil {
		return "", fmt.Errorf("restore token: %w", err)
	}
	refreshed := client.Token()
	if err = tokens.save(ctx, refreshed); err != nil {
		return "", fmt.Errorf("save token: %w", err)
	}
	return refreshed, nil
}
