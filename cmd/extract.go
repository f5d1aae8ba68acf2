package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pders01/searchable-files/internal/extractor"
	"github.com/pders01/searchable-files/internal/settings"
	"github.com/pders01/searchable-files/internal/telemetry"
)

var (
	extractDirectory string
	extractOutput    string
	extractSettings  string
	extractClean     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract metadata from every file in a directory",
	Long: `Walk a directory and write one JSON metadata record per file.

Each record holds the relative path, name, extension, type tags, mode,
size, modification time and (for files matching read_head.files) the
first characters of the file. Records are named after the SHA-256 of
the relative path, so reruns overwrite rather than duplicate.

Examples:
  searchable-files extract
  searchable-files extract --directory ~/papers --clean`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVar(&extractDirectory, "directory", "data/files", "Directory to extract metadata from")
	extractCmd.Flags().StringVar(&extractOutput, "output", "output/extracted", "Directory to write metadata records to")
	extractCmd.Flags().StringVar(&extractSettings, "settings", "data/config/extractor.yaml", "Extractor settings file")
	extractCmd.Flags().BoolVar(&extractClean, "clean", false, "Empty the output directory first")
}

func runExtract(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartStage(commandContext(cmd), "extract",
		attribute.String("extract.directory", extractDirectory))
	defer func() { telemetry.EndStage(span, err) }()

	s, err := settings.LoadExtractor(extractSettings)
	if err != nil {
		return err
	}

	ex := extractor.New(s, extractor.WithLogger(slog.Default()))
	stats, err := ex.Run(ctx, extractDirectory, extractOutput, extractClean)
	if err != nil {
		return fmt.Errorf("metadata extraction failed: %w", err)
	}
	span.SetAttributes(attribute.Int("extract.files", stats.Files))

	fmt.Printf("✓ Metadata extraction complete (%d files)\n", stats.Files)
	fmt.Printf("  Results visible in %s\n", stats.OutputDir)
	return nil
}
