// Package misc holds small terminal helpers shared by the CLI commands: credential log
// lines, the short-code QR code, clipboard copy and config template bootstrapping.
package misc

import (
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Separator used to visually group related log lines.
var credentialSeparator = strings.Repeat("-", 67)

// LogSavingCredentials emits a consistent message when persisting the token blob.
func LogSavingCredentials(location string) {
	if location == "" {
		return
	}
	fmt.Printf("Saving credentials to %s\n", cleanLocation(location))
}

// LogRemovingCredentials emits a consistent message when deleting the token blob.
func LogRemovingCredentials(location string) {
	if location == "" {
		return
	}
	fmt.Printf("Removing credentials from %s\n", cleanLocation(location))
}

// LogCredentialSeparator adds a visual separator to group auth processing logs.
func LogCredentialSeparator() {
	log.Debug(credentialSeparator)
}

// cleanLocation tidies file paths and leaves store URLs such as postgres:// alone.
func cleanLocation(location string) string {
	if strings.Contains(location, "://") {
		return location
	}
	return filepath.Clean(location)
}
