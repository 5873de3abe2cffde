// Package config provides the public SDK configuration API.
//
// It re-exports the client configuration types and helpers so external projects can
// embed MixPlay without importing internal packages.
package config

import internalconfig "github.com/router-for-me/MixPlay/internal/config"

type SDKConfig = internalconfig.SDKConfig

type Config = internalconfig.Config

type RunLoopConfig = internalconfig.RunLoopConfig

const (
	DefaultAPIBaseURL = internalconfig.DefaultAPIBaseURL
	DefaultTokenFile  = internalconfig.DefaultTokenFile
)

func LoadConfig(configFile string) (*Config, error) { return internalconfig.LoadConfig(configFile) }

func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	return internalconfig.LoadConfigOptional(configFile, optional)
}
