package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/searchable-files/internal/artifacts"
	"github.com/pders01/searchable-files/internal/search"
)

var (
	queryLimit      int
	queryOffset     int
	queryAdvanced   bool
	queryTypes      string
	queryTypesOr    string
	queryExtensions string
	queryNoAuth     bool
	queryDump       string
)

var queryCmd = &cobra.Command{
	Use:   "query <query-string>",
	Short: "Perform a search query",
	Long: `Query the configured index. Filters on tags and extension work on the
fields written by extract; everything else is plain Globus Search.

Use a query of '*' to match all data.

Examples:
  searchable-files query '*'
  searchable-files query readme --types text,non-executable
  searchable-files query '*' --extensions py,sh --limit 20`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().IntVar(&queryLimit, "limit", 5, "Limit the number of results to return")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 0, "Starting offset for paging")
	queryCmd.Flags().BoolVar(&queryAdvanced, "advanced", false, "Use the advanced query syntax")
	queryCmd.Flags().StringVar(&queryTypes, "types", "", "Only files matching ALL of these types (comma-separated)")
	queryCmd.Flags().StringVar(&queryTypesOr, "types-or", "", "Only files matching ANY of these types (comma-separated)")
	queryCmd.Flags().StringVar(&queryExtensions, "extensions", "", "Only files with one of these extensions (comma-separated)")
	queryCmd.Flags().BoolVar(&queryNoAuth, "no-auth", false, "Query anonymously, hiding entries only visible to you")
	queryCmd.Flags().StringVar(&queryDump, "dump-query", "", "Write the query to this file instead of running it")
}

// buildQuery assembles the search request from the query flags
func buildQuery(q string) *search.Query {
	query := search.NewQuery(q, queryLimit, queryOffset, queryAdvanced)
	if v := splitList(queryTypes); len(v) > 0 {
		query.AddFilter("tags", v, search.MatchAll)
	}
	if v := splitList(queryTypesOr); len(v) > 0 {
		query.AddFilter("tags", v, search.MatchAny)
	}
	// a file has one extension, so match_all could never match two
	if v := splitList(queryExtensions); len(v) > 0 {
		query.AddFilter("extension", v, search.MatchAny)
	}
	return query
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runQuery(cmd *cobra.Command, args []string) error {
	query := buildQuery(args[0])

	if queryDump != "" {
		data, err := json.Marshal(query)
		if err != nil {
			return fmt.Errorf("failed to encode query: %w", err)
		}
		if err := artifacts.WriteFileAtomic(queryDump, data); err != nil {
			return err
		}
		fmt.Println("✓ Query dumped successfully")
		return nil
	}

	ctx := commandContext(cmd)
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	info, err := sess.store.ReadIndexInfo(ctx)
	if err != nil {
		return fmt.Errorf("%w: you must create an index with 'create-index' first", err)
	}
	client, err := sess.searchClient(ctx, queryNoAuth)
	if err != nil {
		return err
	}

	raw, err := client.Search(ctx, info.IndexID, query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	output, err := prettyJSON(raw)
	if err != nil {
		return err
	}
	fmt.Println(output)
	return nil
}
