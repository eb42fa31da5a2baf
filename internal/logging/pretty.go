package logging

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

// Styles for the pretty console renderer.
var (
	bannerStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("12")).Padding(0, 1)
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	actorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	criticStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
	streamPrefix = dimStyle.Render("    │ ")
)

func renderPretty(ev Event) string {
	switch {
	case ev.LoopStarted != nil:
		body := fmt.Sprintf("%s\n%s %s\n%s %s",
			headerStyle.Render("codeloops"),
			dimStyle.Render("Prompt:"), clip(ev.LoopStarted.Prompt, 60),
			dimStyle.Render("Dir:"), clip(ev.LoopStarted.WorkingDir, 60))
		return "\n" + bannerStyle.Render(body) + "\n\n"

	case ev.ActorStarted != nil:
		header := headerStyle.Render(fmt.Sprintf("── Iteration %d ──", ev.ActorStarted.Iteration+1))
		return fmt.Sprintf("%s\n\n  %s\n", header, actorStyle.Render("▶ ACTOR"))

	case ev.ActorCompleted != nil:
		if ev.ActorCompleted.ExitCode == 0 {
			return fmt.Sprintf("    %s (%.1fs)\n\n", okStyle.Render("✓ Done"), ev.ActorCompleted.Seconds)
		}
		return fmt.Sprintf("    %s (%.1fs)\n\n",
			failStyle.Render(fmt.Sprintf("✗ Exit %d", ev.ActorCompleted.ExitCode)), ev.ActorCompleted.Seconds)

	case ev.StreamLine != nil:
		line := ev.StreamLine.Line
		if ev.StreamLine.Stderr {
			line = dimStyle.Render(line)
		}
		return streamPrefix + line + "\n"

	case ev.DiffCaptured != nil:
		d := ev.DiffCaptured
		if d.FilesChanged == 0 {
			return "    " + dimStyle.Render("git: no changes") + "\n\n"
		}
		return fmt.Sprintf("    %s %d %s, %s, %s\n\n",
			dimStyle.Render("git:"),
			d.FilesChanged, plural(d.FilesChanged, "file", "files"),
			okStyle.Render(fmt.Sprintf("+%d", d.Insertions)),
			failStyle.Render(fmt.Sprintf("-%d", d.Deletions)))

	case ev.CriticStarted != nil:
		return fmt.Sprintf("  %s\n", criticStyle.Render("▶ CRITIC"))

	case ev.CriticDone != nil:
		decision := ev.CriticDone.Decision
		var styled string
		switch {
		case strings.Contains(decision, "DONE"):
			styled = okStyle.Render("✓ Decision: " + decision)
		case strings.Contains(decision, "ERROR"):
			styled = failStyle.Render("✗ Decision: " + decision)
		default:
			styled = warnStyle.Render("→ Decision: " + decision)
		}
		return "    " + styled + "\n\n"

	case ev.NodeAppended != nil:
		// Graph bookkeeping is noise in pretty mode.
		return ""

	case ev.LoopLimit != nil:
		return warnStyle.Render(fmt.Sprintf("\n⚠ Maximum iterations reached (%d)", ev.LoopLimit.Iterations)) + "\n"

	case ev.LoopError != nil:
		return failStyle.Render(fmt.Sprintf("\n✗ Error in iteration %d: %s", ev.LoopError.Iteration+1, ev.LoopError.Error)) + "\n"

	case ev.LoopCompleted != nil:
		return okStyle.Render(fmt.Sprintf("\n✓ Completed in %d iterations (%.1fs)", ev.LoopCompleted.Iterations, ev.LoopCompleted.Seconds)) + "\n"
	}
	return ""
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
