package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genqueue/internal/api"
	"github.com/phrazzld/genqueue/internal/client"
	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/service/auth"
	"github.com/spf13/cobra"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func addWaitFlags(cmd *cobra.Command) {
	defaults := client.DefaultPollConfig()
	cmd.Flags().Bool("wait", false, "poll until the job completes or fails")
	cmd.Flags().Duration("max-wait", defaults.MaxWait, "give up waiting after this long")
	cmd.Flags().Duration("poll-interval", defaults.InitialInterval, "initial delay between polls")
	cmd.Flags().Duration("max-poll-interval", defaults.MaxInterval, "upper bound on the delay between polls")
}

func (c *cli) pollConfig() client.PollConfig {
	poll := client.DefaultPollConfig()
	if d := c.v.GetDuration("max-wait"); d > 0 {
		poll.MaxWait = d
	}
	if d := c.v.GetDuration("poll-interval"); d > 0 {
		poll.InitialInterval = d
	}
	if d := c.v.GetDuration("max-poll-interval"); d > 0 {
		poll.MaxInterval = d
	}
	return poll
}

// finish prints the final snapshot and turns a FAILED job into an error so
// the exit status reflects the outcome.
func finish(cmd *cobra.Command, status *api.JobStatusResponse) error {
	if err := printJSON(cmd.OutOrStdout(), status); err != nil {
		return err
	}
	if status.Status == domain.JobStatusFailed {
		if status.Error != nil {
			return fmt.Errorf("job %s failed: %w", status.JobID, status.Error)
		}
		return fmt.Errorf("job %s failed", status.JobID)
	}
	return nil
}

func newSubmitCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <type>",
		Short: "Submit a generation job",
		Long: `Submit a job of the given type: personalization, learning_plan or
subtask_generation. Params are a JSON object given inline or read from a file.

Examples:
  genqueuectl submit subtask_generation --params '{"title":"Write report"}'
  genqueuectl submit learning_plan --params-file plan.json --wait --max-wait 2m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := readParams(c.v.GetString("params"), c.v.GetString("params-file"))
			if err != nil {
				return err
			}

			cl, err := c.client(cmd, c.pollConfig())
			if err != nil {
				return err
			}

			id, err := cl.Submit(cmd.Context(), api.CreateJobRequest{
				Type:           args[0],
				Params:         params,
				TimeoutSeconds: c.v.GetInt("timeout-seconds"),
			})
			if err != nil {
				return err
			}

			if !c.v.GetBool("wait") {
				return printJSON(cmd.OutOrStdout(), api.CreateJobResponse{JobID: id.String()})
			}

			status, err := cl.Wait(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("job %s: %w", id, err)
			}
			return finish(cmd, status)
		},
	}
	cmd.Flags().String("params", "", "job params as a JSON object")
	cmd.Flags().String("params-file", "", "read job params from this file")
	cmd.Flags().Int("timeout-seconds", 0, "override the server's default job timeout")
	addWaitFlags(cmd)
	return cmd
}

func readParams(inline, path string) (json.RawMessage, error) {
	switch {
	case inline != "" && path != "":
		return nil, errors.New("use either --params or --params-file, not both")
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read params file: %w", err)
		}
		inline = string(data)
	case inline == "":
		return nil, errors.New("--params or --params-file is required")
	}

	if !json.Valid([]byte(inline)) {
		return nil, errors.New("params are not valid JSON")
	}
	return json.RawMessage(inline), nil
}

func newStatusCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's status, optionally waiting for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}

			cl, err := c.client(cmd, c.pollConfig())
			if err != nil {
				return err
			}

			if c.v.GetBool("wait") {
				status, err := cl.Wait(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("job %s: %w", id, err)
				}
				return finish(cmd, status)
			}

			status, err := cl.Status(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("job %s: %w", id, err)
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	addWaitFlags(cmd)
	return cmd
}

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client(cmd, client.DefaultPollConfig())
			if err != nil {
				return err
			}
			stats, err := cl.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func newTokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local development",
		Long: `Mint an HS256 token signed with the server's secret. The secret is read
from --secret or GENQUEUE_AUTH_JWT_SECRET and must be at least 32 characters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.v.BindEnv("secret", config.EnvPrefix+"_AUTH_JWT_SECRET"); err != nil {
				return err
			}
			if err := c.v.BindEnv("lifetime", config.EnvPrefix+"_AUTH_TOKEN_LIFETIME"); err != nil {
				return err
			}

			svc, err := auth.NewJWTService(config.AuthConfig{
				Enabled:       true,
				JWTSecret:     c.v.GetString("secret"),
				TokenLifetime: c.v.GetDuration("lifetime"),
			})
			if err != nil {
				return err
			}

			token, err := svc.GenerateToken(cmd.Context(), c.v.GetString("subject"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().String("secret", "", "HMAC signing secret")
	cmd.Flags().String("subject", "dev", "token subject; jobs are scoped to it")
	cmd.Flags().Duration("lifetime", 24*time.Hour, "token lifetime")
	return cmd
}
