package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var askUserID int64

var askCmd = &cobra.Command{
	Use:   "ask <meeting-id> <question>",
	Short: "Ask a question about a meeting's indexed content",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().Int64Var(&askUserID, "user", 0, "user id recorded on the conversation turn")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	meetingID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || meetingID < 1 {
		return fmt.Errorf("invalid meeting id %q", args[0])
	}
	question := strings.Join(args[1:], " ")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	ans, err := app.Answerer.Ask(ctx, meetingID, askUserID, question)
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(ans.Text)
	if len(ans.Citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, c := range ans.Citations {
			name := c.MeetingTitle
			if c.DocumentName != "" {
				name = c.DocumentName
			}
			fmt.Printf("  [%.2f] %s (chunk %d)\n", c.Score, name, c.Ordinal)
		}
	}
	return nil
}
