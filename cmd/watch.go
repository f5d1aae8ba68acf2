package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alpkeskin/gotoon"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pders01/searchable-files/internal/config"
	"github.com/pders01/searchable-files/internal/models"
	"github.com/pders01/searchable-files/internal/telemetry"
	"github.com/pders01/searchable-files/internal/watcher"
)

var (
	watchTaskIDFile string
	watchOutput     string
	watchDelay      float64
	watchJSON       bool
	watchToon       bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Wait for submitted tasks to complete",
	Long: `Poll every task listed in the task id file until it succeeds, fails,
or --max-wait polls have been spent on it, then print a summary.
A JSON report is also written to the output directory.

The interval between polls follows watch.backoff in the config file:
"fixed" (watch.interval, default 1s) or "exponential" (starting at
watch.interval, growing 1.5x per poll without jitter, capped at
watch.max_interval).

Examples:
  searchable-files watch
  searchable-files watch --max-wait 30 --json`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchTaskIDFile, "task-id-file", "output/task_submit/tasks.txt", "File containing task ids to watch")
	watchCmd.Flags().StringVar(&watchOutput, "output", "output/task_watch", "Directory to write the watch report to")
	watchCmd.Flags().Int("max-wait", watcher.DefaultMaxWait, "Polls per task before it counts as not completed")
	watchCmd.Flags().Float64Var(&watchDelay, "delay", 0, "Seconds to sleep between tasks")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Output the summary as JSON")
	watchCmd.Flags().BoolVar(&watchToon, "toon", false, "Output the summary in LLM-friendly toon format")
	_ = watchCmd.Flags().MarkHidden("delay")
	_ = viper.BindPFlag("watch.max_wait", watchCmd.Flags().Lookup("max-wait"))
}

func runWatch(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartStage(commandContext(cmd), "watch")
	defer func() { telemetry.EndStage(span, err) }()

	taskIDs, err := watcher.ReadTaskLog(watchTaskIDFile)
	if err != nil {
		return err
	}

	newBackOff, err := watcher.NewBackOff(config.GetWatchBackoff(), config.GetWatchInterval(), config.GetWatchMaxInterval())
	if err != nil {
		return err
	}

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	client, err := sess.searchClient(ctx, false)
	if err != nil {
		return err
	}

	quiet := watchJSON || watchToon
	bar := progressbar.NewOptions(len(taskIDs),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("watching tasks"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetVisibility(!quiet && len(taskIDs) > 0),
	)

	w := watcher.New(client,
		watcher.WithMaxWait(config.GetWatchMaxWait()),
		watcher.WithBackOff(newBackOff),
		watcher.WithDelay(time.Duration(watchDelay*float64(time.Second))),
		watcher.WithLogger(slog.Default()),
		watcher.WithProgress(func(done, total int, o models.WatchOutcome) {
			_ = bar.Add(1)
		}),
	)

	sum, err := w.Run(ctx, taskIDs)
	_ = bar.Finish()
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.Int("watch.total", sum.Total),
		attribute.Int("watch.succeeded", sum.Succeeded),
	)

	if _, err := watcher.WriteReport(watchOutput, sum); err != nil {
		return err
	}

	if watchJSON {
		output, err := json.MarshalIndent(sum, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if watchToon {
		output, err := gotoon.Encode(sum)
		if err != nil {
			return fmt.Errorf("failed to encode Toon: %w", err)
		}
		fmt.Println(output)
		return nil
	}

	if sum.AllSucceeded() {
		fmt.Print("✓ ")
	}
	for _, line := range sum.Lines() {
		fmt.Println(line)
	}
	return nil
}
