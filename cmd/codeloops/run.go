package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codeloops/internal/agent"
	"codeloops/internal/config"
	"codeloops/internal/engine"
	"codeloops/internal/graph"
	"codeloops/internal/logging"
	"codeloops/internal/session"
	"codeloops/internal/store"
)

var (
	runPrompt      string
	runPromptFile  string
	runAgent       string
	runActorAgent  string
	runCriticAgent string
	runModel       string
	runActorModel  string
	runCriticModel string
	runMaxIter     int
	runMaxRev      int
	runLogFormat   string
	runJSON        bool
	runDryRun      bool
	runNoDB        bool
	runTimeout     time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the actor/critic loop on a task",
	Long: `Executes the loop: the actor agent works on the prompt, the critic
reviews its output and the git diff, and the loop repeats with the critique
folded into the next prompt until the critic is satisfied.

Exit codes: 0 success, 1 iteration limit, 130 interrupted, 2 failure.`,
	RunE: runLoop,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runPrompt, "prompt", "p", "", "Task prompt")
	f.StringVar(&runPromptFile, "prompt-file", "", "Read the task prompt from a file")
	f.StringVar(&runAgent, "agent", "", "Agent for both roles (claude, opencode, cursor, gemini)")
	f.StringVar(&runActorAgent, "actor-agent", "", "Agent for the actor role")
	f.StringVar(&runCriticAgent, "critic-agent", "", "Agent for the critic role")
	f.StringVar(&runModel, "model", "", "Model for both roles")
	f.StringVar(&runActorModel, "actor-model", "", "Model for the actor role")
	f.StringVar(&runCriticModel, "critic-model", "", "Model for the critic role")
	f.IntVar(&runMaxIter, "max-iterations", 0, "Iteration cap (0 = unlimited)")
	f.IntVar(&runMaxRev, "max-revisions", 0, "Revision attempts before the critic gives up")
	f.StringVar(&runLogFormat, "log-format", "pretty", "Console output: pretty, compact, or json")
	f.BoolVar(&runJSON, "json", false, "Print the final outcome as JSON on stdout")
	f.BoolVar(&runDryRun, "dry-run", false, "Resolve configuration and check agents, then exit")
	f.BoolVar(&runNoDB, "no-db", false, "Skip the SQLite session database")
	f.DurationVar(&runTimeout, "timeout", 0, "Per-agent-invocation timeout (0 = none)")
}

func runLoop(cmd *cobra.Command, args []string) error {
	dir, err := resolveWorkingDir()
	if err != nil {
		return err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	applyRunFlags(cfg)

	prompt, err := resolvePrompt(args)
	if err != nil {
		return err
	}

	format, err := logging.ParseFormat(runLogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	actor, err := buildAgent(ctx, cfg, cfg.ActorAgent(), cfg.ActorModel())
	if err != nil {
		return fmt.Errorf("actor: %w", err)
	}
	critic, err := buildAgent(ctx, cfg, cfg.CriticAgent(), cfg.CriticModel())
	if err != nil {
		return fmt.Errorf("critic: %w", err)
	}

	if runDryRun {
		return printDryRun(ctx, cfg, dir, actor, critic)
	}

	rec := logging.NewRecorder(logger, format)
	defer rec.Close()

	writer, err := session.NewWriter(cfg.Paths.SessionsDir)
	if err != nil {
		return err
	}
	defer writer.Close()

	var db *store.Store
	if !runNoDB {
		db, err = store.Open(cfg.Paths.Database)
		if err != nil {
			logger.Warn("session database unavailable", zap.Error(err))
		} else {
			defer db.Close()
		}
	}

	runner := engine.NewRunner(engine.Config{
		Actor:        actor,
		Critic:       critic,
		Recorder:     rec,
		Logger:       logger,
		Revisions:    graph.NewRevisionCounter(cfg.MaxRevisions),
		Writer:       writer,
		Store:        db,
		ActorModel:   cfg.ActorModel(),
		CriticModel:  cfg.CriticModel(),
		AgentTimeout: runTimeout,
	})

	loop := engine.NewContext(prompt, dir).WithMaxIterations(cfg.MaxIterations)
	outcome, err := runner.Run(ctx, loop)
	if err != nil {
		return err
	}

	if runJSON {
		data, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}

	if code := outcome.ExitCode(); code != 0 {
		// Bypass cobra's error printing; the recorder already reported.
		rec.Close()
		if logger != nil {
			_ = logger.Sync()
		}
		os.Exit(code)
	}
	return nil
}

func applyRunFlags(cfg *config.Config) {
	if runAgent != "" {
		cfg.Agent = runAgent
	}
	if runActorAgent != "" {
		cfg.Actor.Agent = runActorAgent
	}
	if runCriticAgent != "" {
		cfg.Critic.Agent = runCriticAgent
	}
	if runModel != "" {
		cfg.Model = runModel
	}
	if runActorModel != "" {
		cfg.Actor.Model = runActorModel
	}
	if runCriticModel != "" {
		cfg.Critic.Model = runCriticModel
	}
	if runMaxIter > 0 {
		cfg.MaxIterations = runMaxIter
	}
	if runMaxRev > 0 {
		cfg.MaxRevisions = runMaxRev
	}
}

func resolvePrompt(args []string) (string, error) {
	switch {
	case runPrompt != "" && runPromptFile != "":
		return "", fmt.Errorf("--prompt and --prompt-file are mutually exclusive")
	case runPrompt != "":
		return runPrompt, nil
	case runPromptFile != "":
		data, err := os.ReadFile(runPromptFile)
		if err != nil {
			return "", fmt.Errorf("read prompt file: %w", err)
		}
		prompt := strings.TrimSpace(string(data))
		if prompt == "" {
			return "", fmt.Errorf("prompt file %s is empty", runPromptFile)
		}
		return prompt, nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	}
	return "", fmt.Errorf("no task given: use --prompt, --prompt-file, or positional arguments")
}

func buildAgent(ctx context.Context, cfg *config.Config, name, model string) (agent.Agent, error) {
	t, err := agent.ParseType(name)
	if err != nil {
		return nil, err
	}
	if t == agent.TypeGemini {
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini agent requires an API key (gemini_api_key or GEMINI_API_KEY)")
		}
		return agent.NewGemini(ctx, cfg.GeminiAPIKey, model)
	}
	return agent.New(t)
}

func printDryRun(ctx context.Context, cfg *config.Config, dir string, actor, critic agent.Agent) error {
	check := func(a agent.Agent) string {
		if a.Available(ctx) {
			return "available"
		}
		return "NOT FOUND"
	}
	fmt.Printf("working dir:     %s\n", dir)
	fmt.Printf("actor:           %s (%s) model=%s\n", actor.Name(), check(actor), orDefault(cfg.ActorModel()))
	fmt.Printf("critic:          %s (%s) model=%s\n", critic.Name(), check(critic), orDefault(cfg.CriticModel()))
	fmt.Printf("max iterations:  %s\n", orUnlimited(cfg.MaxIterations))
	fmt.Printf("max revisions:   %d\n", cfg.MaxRevisions)
	fmt.Printf("sessions dir:    %s\n", cfg.Paths.SessionsDir)
	fmt.Printf("database:        %s\n", cfg.Paths.Database)
	return nil
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

func orUnlimited(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}
