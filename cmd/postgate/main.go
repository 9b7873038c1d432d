// Command postgate runs the publishing gateway and manages session tokens.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/eringen/postgate"
	"github.com/eringen/postgate/token"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	envFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "postgate",
		Short:         "Publishing gateway for markdown posts stored on GitHub",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newTokenCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := postgate.LoadConfig()
			if err != nil {
				return err
			}
			logger := postgate.NewLogger(os.Stdout, cfg.LogLevel)
			app, err := postgate.New(cfg, postgate.WithLogger(logger))
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Start(ctx)
		},
	}
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and inspect session tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "issue <email>",
		Short: "Issue a session token for an allow-listed email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, tokens, err := loadTokens()
			if err != nil {
				return err
			}
			if !cfg.AllowedEmails.Contains(args[0]) {
				return fmt.Errorf("%s is not in ALLOWED_EMAILS", args[0])
			}
			tok, err := tokens.Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "verify <token>",
		Short: "Check a session token and print its email and expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, tokens, err := loadTokens()
			if err != nil {
				return err
			}
			p, err := tokens.Verify(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "email: %s\nexpires: %s\n", p.Email, p.Expires().UTC().Format("2006-01-02T15:04:05Z"))
			return nil
		},
	})
	return cmd
}

func loadTokens() (postgate.Config, *token.Service, error) {
	cfg, err := postgate.LoadConfig()
	if err != nil {
		return postgate.Config{}, nil, err
	}
	tokens, err := token.NewService(cfg.AuthSecret, cfg.TokenTTL)
	if err != nil {
		return postgate.Config{}, nil, err
	}
	return cfg, tokens, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the postgate version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "postgate %s\n", version)
		},
	}
}
