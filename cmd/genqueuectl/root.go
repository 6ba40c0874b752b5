package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/phrazzld/genqueue/internal/client"
	"github.com/phrazzld/genqueue/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultServerURL = "http://localhost:8080/api"

// cli holds settings shared by every subcommand. Flags win over
// GENQUEUE_* environment variables, which win over defaults.
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "genqueuectl",
		Short: "Submit and follow genqueue generation jobs",
		Long: `genqueuectl talks to a genqueue server.

Examples:
  genqueuectl submit learning_plan --params '{"title":"Learn Go"}' --wait
  genqueuectl status 3f1c...
  genqueuectl stats
  genqueuectl token --subject alice`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; a malformed one is not.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			return c.bind(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("server", defaultServerURL, "server base URL (GENQUEUE_SERVER)")
	flags.String("token", "", "bearer token (GENQUEUE_TOKEN)")
	flags.Duration("request-timeout", 30*time.Second, "timeout for a single HTTP request")
	flags.Bool("verbose", false, "log poll diagnostics to stderr")

	root.AddCommand(
		newSubmitCmd(c),
		newStatusCmd(c),
		newStatsCmd(c),
		newTokenCmd(c),
	)
	return root
}

func (c *cli) bind(cmd *cobra.Command) error {
	c.v.SetEnvPrefix(config.EnvPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()
	if err := c.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	return nil
}

func (c *cli) client(cmd *cobra.Command, poll client.PollConfig) (*client.Client, error) {
	level := slog.LevelWarn
	if c.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	opts := []client.Option{
		client.WithPollConfig(poll),
		client.WithLogger(log),
	}
	if token := c.v.GetString("token"); token != "" {
		opts = append(opts, client.WithToken(token))
	}
	if timeout := c.v.GetDuration("request-timeout"); timeout > 0 {
		opts = append(opts, client.WithHTTPClient(newHTTPClient(timeout)))
	}
	return client.New(c.v.GetString("server"), opts...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
