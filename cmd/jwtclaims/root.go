package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bionicotaku/lingo-utils-jwtclaims"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "jwtclaims",
		Short:         "Inspect, build and validate JWT claims",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return cfg.Log.apply(logrus.StandardLogger())
		},
	}
	root.PersistentFlags().AddFlagSet(persistentFlagSet())
	root.AddCommand(newDecodeCommand(), newEncodeCommand(), newValidateCommand())
	return root
}

func newDecodeCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "decode [token|segment|json]",
		Short: "Decode claims without verifying any signature",
		Long: "Decode reads a compact token, a base64url claims segment or claims JSON " +
			"from the argument or stdin and prints the claims.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			claims, err := decodeAny(input)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), claims)
			}
			printClaims(cmd.OutOrStdout(), "Claims (unverified)", claims)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the canonical claims JSON instead of a summary")
	return cmd
}

func newEncodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encode [json]",
		Short: "Encode claims JSON as a base64url claims segment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			claims, err := jwtclaims.Decode([]byte(input))
			if err != nil {
				return err
			}
			segment, err := jwtclaims.EncodeSegment(claims)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), segment)
			return err
		},
	}
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(data))
	if input == "" {
		return "", errors.New("no input given")
	}
	return input, nil
}

func decodeAny(input string) (*jwtclaims.Claims, error) {
	switch {
	case strings.HasPrefix(input, "{"):
		return jwtclaims.Decode([]byte(input))
	case strings.Count(input, ".") == 2:
		return jwtclaims.FromToken(input)
	default:
		return jwtclaims.DecodeSegment(input)
	}
}
