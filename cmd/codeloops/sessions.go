package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"codeloops/cmd/codeloops/ui"
	"codeloops/internal/config"
	"codeloops/internal/session"
)

var (
	listOutcome string
	listProject string
	listSearch  string
	listAfter   string
	listBefore  string
	listJSON    bool
	showDiff    bool
	statsJSON   bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded loop sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE:  listSessions,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  showSession,
}

var sessionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate statistics across sessions",
	RunE:  showStats,
}

var sessionsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream session activity as it happens",
	RunE:  watchSessions,
}

var sessionsBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse sessions in a terminal UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := sessionsDir()
		if err != nil {
			return err
		}
		return ui.Run(dir)
	},
}

func init() {
	f := sessionsListCmd.Flags()
	f.StringVar(&listOutcome, "outcome", "", "Filter by outcome (success, failed, interrupted, max_iterations_reached)")
	f.StringVar(&listProject, "project", "", "Filter by project name")
	f.StringVar(&listSearch, "search", "", "Filter by prompt text")
	f.StringVar(&listAfter, "after", "", "Only sessions started after this date (YYYY-MM-DD)")
	f.StringVar(&listBefore, "before", "", "Only sessions started before this date (YYYY-MM-DD)")
	f.BoolVar(&listJSON, "json", false, "Output JSON")

	sessionsShowCmd.Flags().BoolVar(&showDiff, "diff", false, "Include the combined git diff")
	sessionsStatsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output JSON")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsStatsCmd)
	sessionsCmd.AddCommand(sessionsWatchCmd)
	sessionsCmd.AddCommand(sessionsBrowseCmd)
}

func sessionsDir() (*session.Dir, error) {
	dir, err := resolveWorkingDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	return session.NewDir(cfg.Paths.SessionsDir, logger), nil
}

func buildFilter() (session.Filter, error) {
	filter := session.Filter{
		Outcome: listOutcome,
		Project: listProject,
		Search:  listSearch,
	}
	if listAfter != "" {
		t, err := time.Parse("2006-01-02", listAfter)
		if err != nil {
			return filter, fmt.Errorf("parse --after: %w", err)
		}
		filter.After = t
	}
	if listBefore != "" {
		t, err := time.Parse("2006-01-02", listBefore)
		if err != nil {
			return filter, fmt.Errorf("parse --before: %w", err)
		}
		filter.Before = t.Add(24 * time.Hour)
	}
	return filter, nil
}

func listSessions(cmd *cobra.Command, args []string) error {
	d, err := sessionsDir()
	if err != nil {
		return err
	}
	filter, err := buildFilter()
	if err != nil {
		return err
	}
	summaries, err := d.List(filter)
	if err != nil {
		return err
	}

	if listJSON {
		data, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(summaries) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}
	for _, s := range summaries {
		outcome := s.Outcome
		if outcome == "" {
			outcome = "active"
		}
		fmt.Printf("%-28s %-10s %2d iter  %-16s %s\n",
			s.ID, outcome, s.Iterations, s.Project, s.PromptPreview)
	}
	return nil
}

func showSession(cmd *cobra.Command, args []string) error {
	d, err := sessionsDir()
	if err != nil {
		return err
	}
	s, err := d.Get(args[0])
	if err != nil {
		return err
	}

	md := sessionMarkdown(s)
	if showDiff {
		diff, err := d.Diff(s.ID)
		if err == nil && diff != "" {
			md += "\n## Combined diff\n\n```diff\n" + diff + "\n```\n"
		}
	}

	rendered, err := glamour.Render(md, "dark")
	if err != nil {
		// Fall back to plain markdown on dumb terminals.
		fmt.Println(md)
		return nil
	}
	fmt.Print(rendered)
	return nil
}

func sessionMarkdown(s *session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", s.ID)
	fmt.Fprintf(&b, "**Prompt:** %s\n\n", s.Start.Prompt)
	fmt.Fprintf(&b, "**Project:** %s (`%s`)\n\n", filepathBase(s.Start.WorkingDir), s.Start.WorkingDir)
	fmt.Fprintf(&b, "**Agents:** actor=%s critic=%s\n\n", s.Start.ActorAgent, s.Start.CriticAgent)

	if s.End != nil {
		fmt.Fprintf(&b, "**Outcome:** %s after %d iterations (%.1fs)\n\n",
			s.End.Outcome, s.End.Iterations, s.End.Duration)
		if s.End.Summary != "" {
			fmt.Fprintf(&b, "> %s\n\n", s.End.Summary)
		}
	} else {
		b.WriteString("**Outcome:** still running\n\n")
	}

	b.WriteString("## Iterations\n\n")
	for _, it := range s.Iterations {
		fmt.Fprintf(&b, "### Iteration %d — %s\n\n", it.IterationNumber, it.CriticDecision)
		fmt.Fprintf(&b, "- exit code %d, %.1fs, %d files changed\n",
			it.ActorExitCode, it.ActorDuration, it.GitFilesChanged)
		if it.Feedback != "" {
			fmt.Fprintf(&b, "- feedback: %s\n", it.Feedback)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func showStats(cmd *cobra.Command, args []string) error {
	d, err := sessionsDir()
	if err != nil {
		return err
	}
	metrics, err := d.Metrics(session.Filter{})
	if err != nil {
		return err
	}

	if statsJSON {
		data, err := json.MarshalIndent(metrics, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Sessions:              %d (%d successful)\n", metrics.TotalSessions, metrics.SuccessfulSessions)
	fmt.Printf("Success rate:          %.0f%%\n", metrics.SuccessRate*100)
	fmt.Printf("First-try successes:   %.0f%%\n", metrics.FirstTrySuccessRate*100)
	fmt.Printf("Avg iterations:        %.1f (to success)\n", metrics.AvgIterationsToSucces)
	fmt.Printf("Avg cycle time:        %.1fs\n", metrics.AvgCycleTime)
	fmt.Printf("Waste rate:            %.0f%%\n", metrics.WasteRate*100)
	fmt.Printf("Critic approval rate:  %.0f%%\n", metrics.CriticApprovalRate*100)
	fmt.Printf("Improvement rate:      %.0f%%\n", metrics.ImprovementRate*100)
	if len(metrics.ByProject) > 0 {
		fmt.Println("\nBy project:")
		for _, p := range metrics.ByProject {
			fmt.Printf("  %-24s %3d sessions  %.0f%% success\n", p.Project, p.Total, p.SuccessRate*100)
		}
	}
	return nil
}

func watchSessions(cmd *cobra.Command, args []string) error {
	dir, err := resolveWorkingDir()
	if err != nil {
		return err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}

	w, err := session.NewWatcher(cfg.Paths.SessionsDir, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w.Start(ctx)
	defer w.Stop()

	fmt.Printf("Watching %s (ctrl-c to stop)\n", cfg.Paths.SessionsDir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case session.EventCreated:
				fmt.Printf("%s  started   %s\n", time.Now().Format("15:04:05"), ev.ID)
			case session.EventUpdated:
				fmt.Printf("%s  iteration %d  %s\n", time.Now().Format("15:04:05"), ev.Iteration, ev.ID)
			case session.EventCompleted:
				fmt.Printf("%s  %-9s %s\n", time.Now().Format("15:04:05"), ev.Outcome, ev.ID)
			}
		}
	}
}

func filepathBase(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 && i+1 < len(p) {
		return p[i+1:]
	}
	return p
}
