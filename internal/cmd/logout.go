package cmd

import (
	"context"
	"fmt"

	"github.com/router-for-me/MixPlay/internal/misc"
)

// DoLogout removes the saved token blob.
func DoLogout(ctx context.Context, tokens TokenTarget) {
	if err := runLogout(ctx, tokens); err != nil {
		fmt.Printf("Logout failed: %v\n", err)
		return
	}
	fmt.Println("Logged out.")
}

func runLogout(ctx context.Context, tokens TokenTarget) error {
	if tokens.Store == nil {
		return fmt.Errorf("no token store configured")
	}
	misc.LogRemovingCredentials(tokens.location())
	return tokens.Store.Delete(ctx, tokens.Key)
}
