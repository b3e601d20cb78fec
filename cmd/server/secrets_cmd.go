package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wakakowasake/favthing/internal/app"
	"github.com/wakakowasake/favthing/internal/secrets"
)

func newSecretsCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Show which upstream API keys are configured",
		Long: `Resolve every known API key through the same store chain the server
uses (redis, secrets file, environment) and print whether it is set.
Values are never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := f.apply(app.LoadConfig())
			logger := newLogger("error", cfg.LogFormat)
			redisClient := connectRedis(cmd.Context(), cfg.RedisURL, logger)
			if redisClient != nil {
				defer redisClient.Close()
			}
			store, err := buildSecretStore(cfg, redisClient)
			if err != nil {
				return err
			}
			status := secrets.Status(cmd.Context(), store)
			out := cmd.OutOrStdout()
			for _, name := range secrets.Names() {
				state := "missing"
				if status[name] {
					state = "configured"
				}
				fmt.Fprintf(out, "%-20s %s\n", name, state)
			}
			return nil
		},
	}
	cmd.AddCommand(newSecretsSetCmd(f))
	return cmd
}

func newSecretsSetCmd(f *flags) *cobra.Command {
	var fromEnv bool
	cmd := &cobra.Command{
		Use:   "set NAME [VALUE]",
		Short: "Store an API key in the redis secret hash",
		Long: `Write NAME into the redis hash the server reads secrets from, so keys can
be rotated without a restart. An empty VALUE removes the key. With
--from-env the value is read from the environment variable NAME instead of
the command line.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToUpper(strings.TrimSpace(args[0]))
			if !knownSecret(name) {
				return fmt.Errorf("unknown secret %q (known: %s)", name, strings.Join(secrets.Names(), ", "))
			}
			value := ""
			switch {
			case fromEnv:
				value = os.Getenv(name)
			case len(args) == 2:
				value = args[1]
			}

			cfg := f.apply(app.LoadConfig())
			logger := newLogger("warn", cfg.LogFormat)
			client, err := requireRedis(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := secrets.NewRedisStore(client, cfg.SecretsRedisKey).Set(cmd.Context(), name, value); err != nil {
				return fmt.Errorf("store %s: %w", name, err)
			}
			action := "stored"
			if strings.TrimSpace(value) == "" {
				action = "removed"
			}
			logger.Info("secret updated", slog.String("name", name), slog.String("action", action))
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", name, action)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromEnv, "from-env", false, "read the value from the environment variable NAME")
	return cmd
}

func knownSecret(name string) bool {
	for _, known := range secrets.Names() {
		if known == name {
			return true
		}
	}
	return false
}
