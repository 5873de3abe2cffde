// Package main provides the entry point for the mixplay command-line client.
// It logs in with a short code, keeps the token blob in the configured store,
// and joins an interactive experience as a game client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/router-for-me/MixPlay/internal/buildinfo"
	"github.com/router-for-me/MixPlay/internal/cmd"
	"github.com/router-for-me/MixPlay/internal/config"
	"github.com/router-for-me/MixPlay/internal/logging"
	"github.com/router-for-me/MixPlay/internal/misc"
	"github.com/router-for-me/MixPlay/internal/store"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// main parses command-line flags, loads configuration, selects the token store and
// runs the requested mode (login, refresh, logout or play).
func main() {
	fmt.Printf("MixPlay Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	var login bool
	var refresh bool
	var logout bool
	var play bool
	var noBrowser bool
	var configPath string

	flag.BoolVar(&login, "login", false, "Login to Mixer with a short code")
	flag.BoolVar(&refresh, "refresh", false, "Refresh the saved token")
	flag.BoolVar(&logout, "logout", false, "Remove the saved token")
	flag.BoolVar(&play, "play", false, "Join the configured interactive experience")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically for login")
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	configFilePath := configPath
	if configFilePath == "" {
		configFilePath = filepath.Join(wd, "config.yaml")
		if _, errStat := os.Stat(configFilePath); errors.Is(errStat, os.ErrNotExist) {
			examplePath := filepath.Join(wd, "config.example.yaml")
			if _, errExample := os.Stat(examplePath); errExample == nil {
				if errCopy := misc.CopyConfigTemplate(examplePath, configFilePath); errCopy != nil {
					log.Errorf("failed to bootstrap config: %v", errCopy)
					return
				}
				log.Infof("config initialized from template: %s", configFilePath)
			}
		}
	}

	cfg, err := config.LoadConfigOptional(configFilePath, configPath == "")
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}
	cfg.ApplyEnv()
	cfg.ApplyDefaults()

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, closer, err := openTokenStore(ctx, cfg)
	if err != nil {
		log.Errorf("failed to initialize token store: %v", err)
		return
	}
	if closer != nil {
		defer func() {
			if errClose := closer.Close(); errClose != nil {
				log.Warnf("failed to close token store: %v", errClose)
			}
		}()
	}

	if logout {
		cmd.DoLogout(ctx, tokens)
		return
	}

	if err = cfg.Validate(); err != nil {
		log.Errorf("invalid config: %v", err)
		return
	}

	switch {
	case login:
		cmd.DoLogin(ctx, cfg, tokens, &cmd.LoginOptions{NoBrowser: noBrowser})
	case refresh:
		cmd.DoRefresh(ctx, cfg, tokens)
	case play:
		cmd.DoPlay(ctx, cfg, tokens)
	default:
		flag.Usage()
	}
}

// openTokenStore prefers the Postgres store, then the object store, and falls back to
// the token file from the config.
func openTokenStore(ctx context.Context, cfg *config.Config) (cmd.TokenTarget, io.Closer, error) {
	lookupEnv := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if value, ok := os.LookupEnv(key); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed, true
				}
			}
		}
		return "", false
	}

	var sel store.Selection
	if value, ok := lookupEnv("PGSTORE_DSN", "pgstore_dsn"); ok {
		sel.Postgres = &store.PostgresStoreConfig{DSN: value}
		if schema, okSchema := lookupEnv("PGSTORE_SCHEMA", "pgstore_schema"); okSchema {
			sel.Postgres.Schema = schema
		}
		if table, okTable := lookupEnv("PGSTORE_TABLE", "pgstore_table"); okTable {
			sel.Postgres.Table = table
		}
	}
	if value, ok := lookupEnv("OBJECTSTORE_ENDPOINT", "objectstore_endpoint"); ok {
		objCfg, err := objectStoreConfig(value)
		if err != nil {
			return cmd.TokenTarget{}, nil, err
		}
		objCfg.AccessKey, _ = lookupEnv("OBJECTSTORE_ACCESS_KEY", "objectstore_access_key")
		objCfg.SecretKey, _ = lookupEnv("OBJECTSTORE_SECRET_KEY", "objectstore_secret_key")
		objCfg.Bucket, _ = lookupEnv("OBJECTSTORE_BUCKET", "objectstore_bucket")
		objCfg.Region, _ = lookupEnv("OBJECTSTORE_REGION", "objectstore_region")
		objCfg.Prefix, _ = lookupEnv("OBJECTSTORE_PREFIX", "objectstore_prefix")
		sel.Object = &objCfg
	}
	tokenFile, err := cfg.ResolveTokenFile()
	if err != nil {
		return cmd.TokenTarget{}, nil, err
	}
	sel.TokenFile = tokenFile

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	blobs, key, err := store.Open(openCtx, sel)
	if err != nil {
		return cmd.TokenTarget{}, nil, err
	}
	closer, _ := blobs.(io.Closer)
	log.Debugf("token store: %s", blobs.Location(key))
	return cmd.TokenTarget{Store: blobs, Key: key}, closer, nil
}

// objectStoreConfig accepts either host[:port] or an http(s) URL for the endpoint.
func objectStoreConfig(endpoint string) (store.ObjectStoreConfig, error) {
	resolvedEndpoint := strings.TrimSpace(endpoint)
	useSSL := true
	if strings.Contains(resolvedEndpoint, "://") {
		parsed, errParse := url.Parse(resolvedEndpoint)
		if errParse != nil {
			return store.ObjectStoreConfig{}, fmt.Errorf("parse object store endpoint %q: %w", endpoint, errParse)
		}
		switch strings.ToLower(parsed.Scheme) {
		case "http":
			useSSL = false
		case "https":
			useSSL = true
		default:
			return store.ObjectStoreConfig{}, fmt.Errorf("unsupported object store scheme %q (only http and https are allowed)", parsed.Scheme)
		}
		if parsed.Host == "" {
			return store.ObjectStoreConfig{}, fmt.Errorf("object store endpoint %q is missing host information", endpoint)
		}
		resolvedEndpoint = parsed.Host
	}
	return store.ObjectStoreConfig{
		Endpoint:  strings.TrimRight(resolvedEndpoint, "/"),
		UseSSL:    useSSL,
		PathStyle: true,
	}, nil
}
