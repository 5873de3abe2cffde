// Package logging re-exports the logger setup used by the mixplay binary so that
// programs embedding the SDK get the same log format and file rotation.
package logging

import (
	internallogging "github.com/router-for-me/MixPlay/internal/logging"
	"github.com/router-for-me/MixPlay/sdk/config"
)

// LogFormatter renders log entries as "[time] [request-id] [level] [file:line] message fields".
type LogFormatter = internallogging.LogFormatter

// SetupBaseLogger installs LogFormatter on the standard logrus logger.
func SetupBaseLogger() {
	internallogging.SetupBaseLogger()
}

// ConfigureLogOutput applies the debug level and, when enabled, rotating file output.
func ConfigureLogOutput(cfg *config.Config) error {
	return internallogging.ConfigureLogOutput(cfg)
}

// LogDirectory returns the directory used for log files under cfg.
func LogDirectory(cfg *config.Config) string {
	return internallogging.ResolveLogDirectory(cfg)
}
