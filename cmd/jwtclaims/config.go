package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bionicotaku/lingo-utils-jwtclaims"
)

const (
	envPrefix        = "JWTCLAIMS_"
	defaultDelimiter = "."
	configFileFlag   = "configfile"
)

// Config is the CLI configuration. Values are layered: flag defaults, YAML
// file, JWTCLAIMS_* environment variables, then explicitly set flags.
type Config struct {
	ConfigFile string        `koanf:"configfile"`
	Token      string        `koanf:"token"`
	Log        LogConfig     `koanf:"log"`
	Issuer     IssuerSection `koanf:"issuer"`
	Mint       MintConfig    `koanf:"mint"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// IssuerSection describes the single issuer the validate command trusts.
type IssuerSection struct {
	Name       string        `koanf:"name"`
	JWKSURL    string        `koanf:"jwksurl"`
	Issuer     string        `koanf:"iss"`
	Audience   string        `koanf:"audience"`
	Subjects   []string      `koanf:"subjects"`
	RequireExp bool          `koanf:"requireexp"`
	ClockSkew  time.Duration `koanf:"clockskew"`
	MinRefresh time.Duration `koanf:"minrefresh"`
	Timeout    time.Duration `koanf:"timeout"`
}

// MintConfig selects how validate obtains a token when none is given.
type MintConfig struct {
	Mode           string `koanf:"mode"`
	ServiceAccount string `koanf:"serviceaccount"`
	ProjectURL     string `koanf:"projecturl"`
	APIKey         string `koanf:"apikey"`
	Email          string `koanf:"email"`
	Password       string `koanf:"password"`
}

func persistentFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("global", pflag.ContinueOnError)
	flags.String(configFileFlag, "jwtclaims.yaml", "YAML config file, ignored when missing")
	flags.String("log.level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log.format", "text", "Log format (text, json)")
	return flags
}

func validateFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	flags.String("token", "", "Token to validate; minted when empty and mint.mode is set")
	flags.String("issuer.name", "default", "Issuer name")
	flags.String("issuer.jwksurl", "", "JWKS URL; empty selects Google identity token validation")
	flags.String("issuer.iss", "", "Expected iss claim")
	flags.String("issuer.audience", "", "Expected aud claim")
	flags.StringSlice("issuer.subjects", nil, "Allowed subjects or emails")
	flags.Bool("issuer.requireexp", false, "Reject tokens without exp")
	flags.Duration("issuer.clockskew", 30*time.Second, "Tolerated clock skew")
	flags.Duration("issuer.minrefresh", time.Minute, "Minimum JWKS refresh interval")
	flags.Duration("issuer.timeout", 5*time.Second, "HTTP timeout for JWKS and token minting")
	flags.String("mint.mode", "", "Mint a token when none is given (google, supabase)")
	flags.String("mint.serviceaccount", "", "Service account to impersonate (google)")
	flags.String("mint.projecturl", "", "Project base URL (supabase), derived from the JWKS URL when empty")
	flags.String("mint.apikey", "", "API key (supabase)")
	flags.String("mint.email", "", "User email (supabase)")
	flags.String("mint.password", "", "User password (supabase)")
	return flags
}

func loadConfig(cmd *cobra.Command) (Config, error) {
	k := koanf.New(defaultDelimiter)
	flags := cmd.Flags()
	if err := k.Load(posflag.Provider(flags, defaultDelimiter, k), nil); err != nil {
		return Config{}, fmt.Errorf("load flag defaults: %w", err)
	}
	if path := k.String(configFileFlag); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(envProvider(), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}
	if err := k.Load(posflag.Provider(flags, defaultDelimiter, k), nil); err != nil {
		return Config{}, fmt.Errorf("load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// envProvider maps JWTCLAIMS_ISSUER_JWKSURL to issuer.jwksurl. Comma
// separated values become lists.
func envProvider() *env.Env {
	return env.ProviderWithValue(envPrefix, defaultDelimiter, func(rawKey, rawValue string) (string, interface{}) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(rawKey, envPrefix)), "_", defaultDelimiter)
		if strings.Contains(rawValue, ",") {
			values := strings.Split(rawValue, ",")
			for i, value := range values {
				values[i] = strings.TrimSpace(value)
			}
			return key, values
		}
		return key, rawValue
	})
}

func (c LogConfig) apply(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	switch c.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	return nil
}

func (s IssuerSection) toValidatorConfig() jwtclaims.ValidatorConfig {
	return jwtclaims.ValidatorConfig{
		Issuers: []jwtclaims.IssuerConfig{{
			Name:              s.Name,
			JWKSURL:           s.JWKSURL,
			Issuer:            s.Issuer,
			Audience:          s.Audience,
			AllowedSubjects:   s.Subjects,
			RequireExpiration: s.RequireExp,
			ClockSkew:         s.ClockSkew,
			MinRefresh:        s.MinRefresh,
			HTTPTimeout:       s.Timeout,
		}},
	}
}
