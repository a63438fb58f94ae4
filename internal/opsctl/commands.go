package opsctl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/matchlearn/internal/domain/model"
)

// EnvServer names the environment variable holding the default server URL.
const EnvServer = "MATCHLEARN_SERVER"

const defaultServer = "http://localhost:9080"

// Execute runs matchctl with os.Args.
func Execute() error {
	return NewRootCommand(os.Stdout).Execute()
}

// NewRootCommand builds the matchctl command tree writing results to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)
	client := func() *Client { return NewClient(server, WithTimeout(timeout)) }

	root := &cobra.Command{
		Use:           "matchctl",
		Short:         "matchctl manages scoring models of a matchlearn server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	def := os.Getenv(EnvServer)
	if def == "" {
		def = defaultServer
	}
	root.PersistentFlags().StringVar(&server, "server", def, "matchlearn base URL (env "+EnvServer+")")
	root.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "request timeout")

	root.AddCommand(
		modelsCommand(client),
		trainCommand(client),
		activateCommand(client),
		rollbackCommand(client),
		statusCommand(client),
	)
	return root
}

func modelsCommand(client func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect published model versions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <domain>",
			Short: "List every version of a domain",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				models, err := client().Models(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printModels(cmd.OutOrStdout(), models)
			},
		},
		&cobra.Command{
			Use:   "active <domain>",
			Short: "Show the active model of a domain",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := client().Active(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			},
		},
		&cobra.Command{
			Use:   "history <domain>",
			Short: "Show the activation audit trail of a domain",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				log, err := client().History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printHistory(cmd.OutOrStdout(), log)
			},
		},
	)
	return cmd
}

func trainCommand(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "train <domain>",
		Short: "Train a new inactive version from unconsumed feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := client().Train(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
}

func activateCommand(client func() *Client) *cobra.Command {
	var (
		expect int64
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "activate <domain> <version>",
		Short: "Make a version the active model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || version < 1 {
				return fmt.Errorf("invalid version %q", args[1])
			}
			var expected *int64
			if cmd.Flags().Changed("expect") {
				expected = &expect
			}
			m, err := client().Activate(cmd.Context(), args[0], version, expected, force)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "domain %s: version %d active\n", m.Domain, m.Version)
			return err
		},
	}
	cmd.Flags().Int64Var(&expect, "expect", 0, "only activate while this version is active (0 means none)")
	cmd.Flags().BoolVar(&force, "force", false, "allow activating a degenerate version")
	return cmd
}

func rollbackCommand(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <domain>",
		Short: "Reactivate the previously active version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := client().Rollback(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "domain %s: rolled back to version %d\n", m.Domain, m.Version)
			return err
		},
	}
}

func statusCommand(client func() *Client) *cobra.Command {
	var threshold int
	cmd := &cobra.Command{
		Use:   "status <domain>",
		Short: "Report whether a domain is due for retraining",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client().RetrainStatus(cmd.Context(), args[0], threshold)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
	cmd.Flags().IntVar(&threshold, "threshold", 0, "unconsumed feedback count that makes retraining due (server default when 0)")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printModels(w io.Writer, models []model.ScoringModel) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tACTIVE\tSAMPLES\tACCURACY\tPARENT\tDEGENERATE\tCREATED")
	for _, m := range models {
		fmt.Fprintf(tw, "%d\t%t\t%d\t%.3f\t%d\t%t\t%s\n",
			m.Version, m.IsActive, m.TrainingSampleCount, m.AccuracyEstimate,
			m.ParentVersion, m.Degenerate, m.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func printHistory(w io.Writer, log []model.ActivationRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tACTION\tFROM\tTO")
	for _, r := range log {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", r.At.Format(time.RFC3339), r.Action, r.FromVersion, r.ToVersion)
	}
	return tw.Flush()
}
