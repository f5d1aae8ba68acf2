package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/alpkeskin/gotoon"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pders01/searchable-files/internal/models"
)

const (
	indexDisplayName = "Searchable Files Demo Index"
	indexDescription = "An index created for use with the Searchable Files Demo App. Created by %s"
)

var (
	showIndexJSON bool
	showIndexToon bool
)

var createIndexCmd = &cobra.Command{
	Use:   "create-index",
	Short: "Create the index for searchable-files",
	Long: `Create a new index owned by the current user, with an automatically
chosen name and description, and remember it as the default index for
submit, show-index and query.`,
	Args: cobra.NoArgs,
	RunE: runCreateIndex,
}

var showIndexCmd = &cobra.Command{
	Use:   "show-index",
	Short: "Show index info",
	Long: `Show detailed information about the configured index. The data is
verbatim output from the Globus Search API.`,
	Args: cobra.NoArgs,
	RunE: runShowIndex,
}

var setIndexCmd = &cobra.Command{
	Use:   "set-index <index-id>",
	Short: "Set the index for searchable-files",
	Long: `Use an existing index as the default for submit, show-index and query.
This is the way to point the tool at an index created elsewhere.`,
	Args: cobra.ExactArgs(1),
	RunE: runSetIndex,
}

func init() {
	rootCmd.AddCommand(createIndexCmd)
	rootCmd.AddCommand(showIndexCmd)
	rootCmd.AddCommand(setIndexCmd)

	showIndexCmd.Flags().BoolVar(&showIndexJSON, "json", false, "Output compact JSON")
	showIndexCmd.Flags().BoolVar(&showIndexToon, "toon", false, "Output in LLM-friendly toon format")
}

func runCreateIndex(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	client, err := sess.searchClient(ctx, false)
	if err != nil {
		return err
	}
	username, err := sess.identity.PreferredUsername(ctx)
	if err != nil {
		return fmt.Errorf("failed to look up current user: %w", err)
	}

	idx, err := client.CreateIndex(ctx, indexDisplayName, fmt.Sprintf(indexDescription, username))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := sess.store.StoreIndexInfo(ctx, idx.ID); err != nil {
		return err
	}

	fmt.Printf("✓ Successfully created index, id='%s'\n", idx.ID)
	return nil
}

func runShowIndex(cmd *cobra.Command, args []string) error {
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
	client, err := sess.searchClient(ctx, false)
	if err != nil {
		return err
	}
	raw, err := client.GetIndex(ctx, info.IndexID)
	if err != nil {
		return fmt.Errorf("failed to get index: %w", err)
	}

	switch {
	case showIndexJSON:
		fmt.Println(string(raw))
	case showIndexToon:
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("failed to decode index: %w", err)
		}
		output, err := gotoon.Encode(doc)
		if err != nil {
			return fmt.Errorf("failed to encode Toon: %w", err)
		}
		fmt.Println(output)
	default:
		output, err := prettyJSON(raw)
		if err != nil {
			return err
		}
		fmt.Println(output)
	}
	return nil
}

func runSetIndex(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%w: %q is not a valid index id", models.ErrConfig, args[0])
	}

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.store.StoreIndexInfo(commandContext(cmd), id.String()); err != nil {
		return err
	}
	fmt.Printf("✓ Successfully updated configured index, id='%s'\n", id)
	return nil
}
