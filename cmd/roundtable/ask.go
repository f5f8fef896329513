package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/liliang-cn/roundtable/internal/domain"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Run one roundtable discussion in the terminal",
	Long: `Ask the expert panel a question and stream the discussion to the
terminal. Each expert's turn is headed by its name in the expert's color.
Press Ctrl+C to stop the discussion.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	askRounds int
	askSave   string
)

var (
	dimStyle     = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
)

func init() {
	askCmd.Flags().IntVarP(&askRounds, "rounds", "r", 0, "maximum number of rounds (default roundtable.max_rounds)")
	askCmd.Flags().StringVar(&askSave, "save", "", "save the transcript under this title")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	experts := make(map[string]domain.Expert)
	for _, e := range a.discussions.Experts() {
		experts[e.ID] = e
	}

	question := strings.Join(args, " ")
	events, err := a.discussions.Start(ctx, &domain.StartDiscussionRequest{
		Question:  question,
		MaxRounds: askRounds,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var failure error
	for event := range events {
		switch event.Type {
		case domain.EventExpertStart:
			header := expertHeader(experts[event.ExpertID], event.ExpertID, event.Round)
			if event.PromptTokens > 0 {
				header += dimStyle.Render(fmt.Sprintf(" · ~%d prompt tokens", event.PromptTokens))
			}
			fmt.Fprintf(out, "\n%s\n", header)
		case domain.EventExpertChunk:
			fmt.Fprint(out, event.Content)
		case domain.EventExpertEnd:
			fmt.Fprintln(out)
		case domain.EventSiteChange:
			fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("→ switched to %s (%s)", event.SiteName, event.Content)))
		case domain.EventRoundEnd:
			fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("── end of round %d ──", event.Round)))
		case domain.EventComplete:
			if event.Consensus {
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("\nConsensus reached after %d round(s)", event.Round)))
			} else {
				fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("\nDiscussion ended after %d round(s) without consensus", event.Round)))
			}
		case domain.EventError:
			fmt.Fprintln(out, errorStyle.Render("\nDiscussion failed: "+event.Error))
			failure = errors.New(event.Error)
		}
	}
	if failure != nil {
		return failure
	}

	if askSave != "" {
		chat, err := a.discussions.Save(cmd.Context(), &domain.SaveChatRequest{Title: askSave})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, dimStyle.Render("saved as chat "+chat.ID))
	}
	return nil
}

func expertHeader(e domain.Expert, id string, round int) string {
	name := e.Name
	if name == "" {
		name = id
	}
	style := lipgloss.NewStyle().Bold(true)
	if e.Color != "" {
		style = style.Foreground(lipgloss.Color(e.Color))
	}
	header := style.Render(name)
	if e.Role != "" {
		header += " " + dimStyle.Render("("+e.Role+")")
	}
	return header + dimStyle.Render(fmt.Sprintf(" · round %d", round))
}
