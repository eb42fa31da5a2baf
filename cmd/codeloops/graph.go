package main

import (
	"encoding/json"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"codeloops/internal/config"
	"codeloops/internal/graph"
	"codeloops/internal/store"
)

var (
	graphFormat string
	graphOut    string
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the knowledge graph recorded for a session",
}

var graphShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the nodes of a session graph",
	Args:  cobra.ExactArgs(1),
	RunE:  showGraph,
}

var graphCheckCmd = &cobra.Command{
	Use:   "check <session-id>",
	Short: "Check a session graph for structural violations",
	Args:  cobra.ExactArgs(1),
	RunE:  checkGraph,
}

var graphExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session graph as DOT or JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  exportGraph,
}

func init() {
	graphExportCmd.Flags().StringVar(&graphFormat, "format", "dot", "Export format (dot or json)")
	graphExportCmd.Flags().StringVarP(&graphOut, "out", "o", "", "Write to file instead of stdout")

	graphCmd.AddCommand(graphShowCmd)
	graphCmd.AddCommand(graphCheckCmd)
	graphCmd.AddCommand(graphExportCmd)
}

func loadGraph(sessionID string) (*graph.Manager, error) {
	dir, err := resolveWorkingDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.Paths.Database)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	mgr, err := db.LoadGraph(sessionID)
	if err != nil {
		return nil, err
	}
	if mgr.Len() == 0 {
		return nil, fmt.Errorf("no graph recorded for session %s", sessionID)
	}
	return mgr, nil
}

func showGraph(cmd *cobra.Command, args []string) error {
	mgr, err := loadGraph(args[0])
	if err != nil {
		return err
	}
	for _, n := range mgr.All() {
		marker := "•"
		switch n.Verdict {
		case graph.VerdictApproved:
			marker = "✓"
		case graph.VerdictNeedsRevision:
			marker = "↻"
		case graph.VerdictReject:
			marker = "✗"
		}
		fmt.Printf("%s %-8s %s  %s\n", marker, n.Role, n.ID, clipThought(n.Thought, 80))
		if n.VerdictReason != "" {
			fmt.Printf("           reason: %s\n", n.VerdictReason)
		}
	}
	return nil
}

func checkGraph(cmd *cobra.Command, args []string) error {
	mgr, err := loadGraph(args[0])
	if err != nil {
		return err
	}
	violations := mgr.Check()
	if len(violations) == 0 {
		fmt.Printf("OK: %d nodes, no violations\n", mgr.Len())
		return nil
	}
	for _, v := range violations {
		fmt.Println(v)
	}
	return fmt.Errorf("%d violation(s) found", len(violations))
}

func exportGraph(cmd *cobra.Command, args []string) error {
	mgr, err := loadGraph(args[0])
	if err != nil {
		return err
	}

	var out []byte
	switch graphFormat {
	case "dot":
		out = []byte(mgr.DOT())
	case "json":
		out, err = json.MarshalIndent(mgr, "", "  ")
		if err != nil {
			return err
		}
		out = append(out, '\n')
	default:
		return fmt.Errorf("unknown format %q (want dot or json)", graphFormat)
	}

	if graphOut == "" {
		fmt.Print(string(out))
		return nil
	}
	return os.WriteFile(graphOut, out, 0o644)
}

func clipThought(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
