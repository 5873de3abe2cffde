package cmd

import (
	"context"
	"fmt"

	"github.com/router-for-me/MixPlay/internal/browser"
	"github.com/router-for-me/MixPlay/internal/config"
	"github.com/router-for-me/MixPlay/internal/misc"
	"github.com/router-for-me/MixPlay/sdk/mixplay"
	log "github.com/sirupsen/logrus"
)

// DoLogin runs the short-code device login and saves the resulting token blob.
// It prints the code and verification URL, copies the code to the clipboard and,
// unless disabled, opens the browser before waiting for the user to approve.
func DoLogin(ctx context.Context, cfg *config.Config, tokens TokenTarget, options *LoginOptions) {
	if err := runLogin(ctx, cfg, tokens, options); err != nil {
		fmt.Printf("Mixer authentication failed: %v\n", err)
		return
	}
	fmt.Println("Mixer authentication successful!")
}

func runLogin(ctx context.Context, cfg *config.Config, tokens TokenTarget, options *LoginOptions) error {
	if options == nil {
		options = &LoginOptions{}
	}
	out := writerOrStdout(options.Out)

	client, err := newClient(cfg, mixplay.Handlers{})
	if err != nil {
		return err
	}

	challenge, err := client.RequestShortCode(ctx)
	if err != nil {
		return fmt.Errorf("request short code: %w", err)
	}
	misc.PrintShortCode(out, challenge.Code, challenge.VerificationURL)
	if misc.CopyToClipboard(challenge.Code) {
		_, _ = fmt.Fprintln(out, "The code has been copied to your clipboard.")
	}

	if !options.NoBrowser {
		if !browser.IsAvailable() {
			log.Warn("No browser available on this system; open the URL above manually.")
		} else if errOpen := browser.OpenURL(challenge.VerificationURL); errOpen != nil {
			log.Warnf("Failed to open browser automatically: %v", errOpen)
		}
	}

	_, _ = fmt.Fprintln(out, "Waiting for authorization...")
	if err = client.AwaitCompletion(ctx); err != nil {
		return fmt.Errorf("await authorization: %w", err)
	}

	misc.LogCredentialSeparator()
	if err = tokens.save(ctx, client.Token()); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
