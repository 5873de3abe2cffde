package logging

import (
	"path/filepath"
	"testing"

	"github.com/router-for-me/MixPlay/sdk/config"
	log "github.com/sirupsen/logrus"
)

func TestSetupBaseLoggerInstallsFormatter(t *testing.T) {
	SetupBaseLogger()
	if _, ok := log.StandardLogger().Formatter.(*LogFormatter); !ok {
		t.Fatalf("formatter = %T, want *LogFormatter", log.StandardLogger().Formatter)
	}
}

func TestLogDirectoryUsesConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if got := LogDirectory(&config.Config{LogDir: dir}); got != dir {
		t.Fatalf("LogDirectory = %q, want %q", got, dir)
	}
}
