package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	suggestOwnerID   int64
	suggestTitle     string
	suggestAgenda    string
	suggestExcludeID int64
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Surface related excerpts from prior meetings",
	RunE:  runSuggest,
}

var agendaCmd = &cobra.Command{
	Use:   "agenda <meeting-id>",
	Short: "Draft agenda points for a meeting from its indexed notes",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgenda,
}

func init() {
	suggestCmd.Flags().Int64Var(&suggestOwnerID, "owner", 0, "owner whose meetings are searched (required)")
	suggestCmd.Flags().StringVar(&suggestTitle, "title", "", "upcoming meeting title")
	suggestCmd.Flags().StringVar(&suggestAgenda, "agenda", "", "upcoming meeting agenda text")
	suggestCmd.Flags().Int64Var(&suggestExcludeID, "exclude", 0, "meeting id to exclude from results")
	_ = suggestCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(suggestCmd)

	agendaCmd.Flags().StringVar(&suggestTitle, "title", "", "meeting title to steer the draft")
	rootCmd.AddCommand(agendaCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	suggestions, err := app.Suggester.Suggest(ctx, suggestOwnerID, suggestExcludeID,
		suggestTitle, suggestAgenda)
	if err != nil {
		return fmt.Errorf("building suggestions: %w", err)
	}
	if len(suggestions) == 0 {
		fmt.Println("no related content found")
		return nil
	}

	for _, s := range suggestions {
		title := s.MeetingTitle
		if title == "" {
			title = fmt.Sprintf("meeting %d", s.MeetingID)
		}
		fmt.Printf("[%.2f] %s\n  %s\n", s.Score, title, s.Excerpt)
	}
	return nil
}

func runAgenda(cmd *cobra.Command, args []string) error {
	meetingID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || meetingID < 1 {
		return fmt.Errorf("invalid meeting id %q", args[0])
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	points, err := app.Suggester.AgendaPoints(ctx, meetingID, suggestTitle)
	if err != nil {
		return fmt.Errorf("drafting agenda points: %w", err)
	}
	if len(points) == 0 {
		fmt.Println("no indexed notes to draft from")
		return nil
	}

	for i, p := range points {
		fmt.Printf("%d. %s\n", i+1, p)
	}
	return nil
}
