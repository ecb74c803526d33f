package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

var prepareForce bool

var prepareCmd = &cobra.Command{
	Use:   "prepare <document-id>",
	Short: "Chunk, embed, and index a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrepare,
}

func init() {
	prepareCmd.Flags().BoolVar(&prepareForce, "force", false,
		"re-index even when the document is already embedded at the current version")
	rootCmd.AddCommand(prepareCmd)
}

func runPrepare(cmd *cobra.Command, args []string) error {
	docID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || docID < 1 {
		return fmt.Errorf("invalid document id %q", args[0])
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.Indexer.Prepare(ctx, docID, prepareForce)
	if err != nil {
		return fmt.Errorf("indexing document %d: %w", docID, err)
	}

	if res.Skipped {
		fmt.Printf("document %d already indexed, skipped (use --force to re-index)\n", res.DocumentID)
		return nil
	}
	fmt.Printf("document %d indexed: %d chunks\n", res.DocumentID, res.ChunkCount)
	return nil
}
