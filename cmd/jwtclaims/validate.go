package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/bionicotaku/lingo-utils-jwtclaims"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [token]",
		Short: "Verify a token against one issuer and print its claims",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Token = args[0]
			}
			return runValidate(cmd, cfg)
		},
	}
	cmd.Flags().AddFlagSet(validateFlagSet())
	return cmd
}

func runValidate(cmd *cobra.Command, cfg Config) error {
	if cfg.Issuer.Audience == "" {
		return errors.New("issuer.audience is required (flag, config file or JWTCLAIMS_ISSUER_AUDIENCE)")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Token == "" {
		token, err := mintToken(ctx, cfg)
		if err != nil {
			return err
		}
		cfg.Token = token
	}

	validator, err := jwtclaims.NewValidator(cfg.Issuer.toValidatorConfig())
	if err != nil {
		return fmt.Errorf("create validator: %w", err)
	}
	if err := validator.Warmup(ctx, cfg.Issuer.Name); err != nil {
		logrus.WithError(err).Warn("JWKS warmup failed")
	}

	claims, err := validator.Validate(ctx, cfg.Token, cfg.Issuer.Name)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	printClaims(cmd.OutOrStdout(), "Token verified", claims)
	return nil
}

func mintToken(ctx context.Context, cfg Config) (string, error) {
	var provider *jwtclaims.Provider
	switch cfg.Mint.Mode {
	case "":
		return "", errors.New("no token given and mint.mode is empty")
	case "google":
		provider = jwtclaims.NewProvider(jwtclaims.ProviderConfig{ServiceAccount: cfg.Mint.ServiceAccount})
	case "supabase":
		if cfg.Mint.APIKey == "" || cfg.Mint.Email == "" || cfg.Mint.Password == "" {
			return "", errors.New("mint.email, mint.password and mint.apikey are required for supabase")
		}
		projectURL := cfg.Mint.ProjectURL
		if projectURL == "" {
			projectURL = deriveProjectURL(cfg.Issuer.JWKSURL)
		}
		if projectURL == "" {
			return "", errors.New("mint.projecturl is required when it cannot be derived from issuer.jwksurl")
		}
		factory := func(ctx context.Context, _ string, _ jwtclaims.ProviderParams) (oauth2.TokenSource, error) {
			tok, err := fetchAccessToken(ctx, projectURL, cfg.Mint.APIKey, cfg.Mint.Email, cfg.Mint.Password, cfg.Issuer.Timeout)
			if err != nil {
				return nil, err
			}
			return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, Expiry: time.Now().Add(time.Hour)}), nil
		}
		provider = jwtclaims.NewProvider(jwtclaims.ProviderConfig{TokenFactory: factory})
	default:
		return "", fmt.Errorf("unknown mint.mode %q", cfg.Mint.Mode)
	}

	mintCtx, cancel := context.WithTimeout(ctx, cfg.Issuer.Timeout)
	defer cancel()
	token, claims, err := provider.TokenClaims(mintCtx, cfg.Issuer.Audience)
	if err != nil {
		return "", fmt.Errorf("mint %s token: %w", cfg.Mint.Mode, err)
	}
	sub, _ := claims.GetSubject()
	logrus.WithFields(logrus.Fields{"mode": cfg.Mint.Mode, "subject": sub}).Info("minted token")
	return token, nil
}
