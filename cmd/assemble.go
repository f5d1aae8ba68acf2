package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pders01/searchable-files/internal/assembler"
	"github.com/pders01/searchable-files/internal/settings"
	"github.com/pders01/searchable-files/internal/telemetry"
)

var (
	assembleDirectory string
	assembleOutput    string
	assembleSettings  string
	assembleClean     bool
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Turn extracted metadata into ingest documents",
	Long: `Read the records written by extract, apply annotations and visibility
rules, split configured doc parts into separate entries, and pack the
entries into ingest_doc_<N>.json batches.

Keys in file_specific_annotations and file_restrictions are relpaths as
written by extract: slash-separated and relative to the directory
extract walked, with no leading "./" (for example docs/readme.md).

A visibility of {current_user} resolves to your Globus identity, which
requires a prior login.

Examples:
  searchable-files assemble
  searchable-files assemble --settings my-assembler.yaml --clean`,
	Args: cobra.NoArgs,
	RunE: runAssemble,
}

func init() {
	rootCmd.AddCommand(assembleCmd)

	assembleCmd.Flags().StringVar(&assembleDirectory, "directory", "output/extracted", "Directory of extracted metadata records")
	assembleCmd.Flags().StringVar(&assembleOutput, "output", "output/assembled", "Directory to write ingest documents to")
	assembleCmd.Flags().StringVar(&assembleSettings, "settings", "data/config/assembler.yaml", "Assembler settings file")
	assembleCmd.Flags().BoolVar(&assembleClean, "clean", false, "Empty the output directory first")
}

func runAssemble(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartStage(commandContext(cmd), "assemble",
		attribute.String("assemble.directory", assembleDirectory))
	defer func() { telemetry.EndStage(span, err) }()

	s, err := settings.LoadAssembler(assembleSettings)
	if err != nil {
		return err
	}

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	asm := assembler.New(s, sess.identity, slog.Default())
	stats, err := asm.Run(ctx, assembleDirectory, assembleOutput, assembleClean)
	if err != nil {
		return fmt.Errorf("ingest document assembly failed: %w", err)
	}
	span.SetAttributes(
		attribute.Int("assemble.entries", stats.Entries),
		attribute.Int("assemble.batches", stats.Batches),
	)

	fmt.Printf("✓ Ingest document assembly complete (%d records, %d entries, %d batches)\n",
		stats.Records, stats.Entries, stats.Batches)
	fmt.Printf("  Results visible in %s\n", stats.OutputDir)
	return nil
}
