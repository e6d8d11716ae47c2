package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/smazurov/procpool/internal/jobs"
	"github.com/smazurov/procpool/internal/logging"
	"github.com/spf13/cobra"
)

// CreateRunCmd creates the run command.
func CreateRunCmd() *cobra.Command {
	var limit int
	var logJSON bool
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "run [jobs-file]",
		Short: "Run a batch of jobs through a bounded process pool",
		Long: `Loads a TOML jobs file, runs every job with the configured executable while ` +
			`never exceeding the pool limit, echoes job output to the log and prints a summary. ` +
			`Exits with status 1 if any job fails.`,
		Args: cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			loggingConfig := logging.Config{
				Level:  "info",
				Format: "text",
			}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("jobs")

			f, err := jobs.Load(args[0])
			if err != nil {
				logger.Error("Failed to load jobs", "error", err)
				os.Exit(1)
			}
			if c.Flags().Changed("limit") {
				f.Limit = limit
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			results, runErr := jobs.NewRunner(logger).Run(ctx, f)
			if runErr != nil {
				logger.Error("Run did not complete", "error", runErr)
			}

			if outputJSON {
				err = writeResultsJSON(c.OutOrStdout(), results)
			} else {
				err = writeResultsTable(c.OutOrStdout(), results)
			}
			if err != nil {
				logger.Error("Failed to write results", "error", err)
			}

			if runErr != nil || jobs.CountFailed(results) > 0 {
				stop()
				os.Exit(1)
			}
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 1, "Override the pool limit from the jobs file")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print results as JSON")

	return cmd
}

func writeResultsTable(w io.Writer, results []jobs.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATE\tEXIT\tLINES\tERRORS")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", r.Name, r.State, r.ExitCode, r.Lines, r.ErrLines)
	}
	return tw.Flush()
}

func writeResultsJSON(w io.Writer, results []jobs.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
