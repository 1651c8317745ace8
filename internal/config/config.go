// internal/config/config.go
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel           string `mapstructure:"LOG_LEVEL"`
	ListenAddr         string `mapstructure:"LISTEN_ADDR"`
	DBURL              string `mapstructure:"DB_URL"`
	GithubClientID     string `mapstructure:"GITHUB_CLIENT_ID"`
	GithubClientSecret string `mapstructure:"GITHUB_CLIENT_SECRET"`
	OAuthRedirectURL   string `mapstructure:"OAUTH_REDIRECT_URL"`
	FrontendOrigin     string `mapstructure:"FRONTEND_ORIGIN"`
	SessionSecret      string `mapstructure:"SESSION_SECRET"`
	// OrgMemberPageLimit caps how many member pages are fetched per
	// organization during a sync. 0 means unlimited.
	OrgMemberPageLimit int `mapstructure:"ORG_MEMBER_PAGE_LIMIT"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LISTEN_ADDR", ":3000")
	viper.SetDefault("OAUTH_REDIRECT_URL", "http://localhost:3000/auth/github/callback")
	viper.SetDefault("FRONTEND_ORIGIN", "http://localhost:4200")
	viper.SetDefault("ORG_MEMBER_PAGE_LIMIT", 1)

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.GithubClientID == "" {
		return nil, errors.New("GITHUB_CLIENT_ID is a required configuration field")
	}
	if cfg.GithubClientSecret == "" {
		return nil, errors.New("GITHUB_CLIENT_SECRET is a required configuration field")
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET is a required configuration field")
	}
	if cfg.OrgMemberPageLimit < 0 {
		return nil, errors.New("ORG_MEMBER_PAGE_LIMIT must be zero or positive")
	}

	return &cfg, nil
}
