package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pders01/searchable-files/internal/submitter"
	"github.com/pders01/searchable-files/internal/telemetry"
)

var (
	submitDirectory       string
	submitOutput          string
	submitIndexID         string
	submitContinueOnError bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit ingest documents to the index",
	Long: `Send every ingest document in a directory to the configured index.
Each accepted document becomes an asynchronous task whose id is appended
to tasks.txt in the output directory; use watch to follow them.

By default the first rejected document stops the run. With
--continue-on-error every document is tried and the failures are listed
at the end.

Examples:
  searchable-files submit
  searchable-files submit --index-id 6b1f3c0e-0d8c-4e1a-9f3e-6a1d2c3b4a5f`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitDirectory, "directory", "output/assembled", "Directory of ingest documents to submit")
	submitCmd.Flags().StringVar(&submitOutput, "output", "output/task_submit", "Directory to write tasks.txt to")
	submitCmd.Flags().StringVar(&submitIndexID, "index-id", "", "Submit to this index instead of the one set with create-index or set-index")
	submitCmd.Flags().BoolVar(&submitContinueOnError, "continue-on-error", false, "Keep submitting after a document is rejected")
}

func runSubmit(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartStage(commandContext(cmd), "submit",
		attribute.String("submit.directory", submitDirectory))
	defer func() { telemetry.EndStage(span, err) }()

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	indexID, err := submitter.ResolveIndexID(ctx, submitIndexID, sess.store)
	if err != nil {
		return err
	}
	client, err := sess.searchClient(ctx, false)
	if err != nil {
		return err
	}

	sub := submitter.New(client,
		submitter.WithContinueOnError(submitContinueOnError),
		submitter.WithLogger(slog.Default()))
	res, err := sub.Run(ctx, submitDirectory, submitOutput, indexID)
	if res != nil {
		span.SetAttributes(
			attribute.Int("submit.accepted", res.Submitted()),
			attribute.Int("submit.rejected", res.Failed()),
		)
	}
	if errors.Is(err, submitter.ErrBatchesFailed) {
		for _, o := range res.Outcomes {
			if !o.OK() {
				fmt.Fprintf(os.Stderr, "  ✗ %s: %s\n", o.File, o.Error)
			}
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("✓ Ingest document submission complete (%d tasks)\n", res.Submitted())
	fmt.Printf("  Task IDs are visible in %s\n", res.TaskLog)
	return nil
}
