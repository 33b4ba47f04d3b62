package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/clio-ai/clio/internal/assembler"
	"github.com/clio-ai/clio/internal/checkpoint"
	"github.com/clio-ai/clio/internal/config"
	"github.com/clio-ai/clio/internal/governor"
	"github.com/clio-ai/clio/internal/memory"
	"github.com/clio-ai/clio/internal/provider"
	"github.com/clio-ai/clio/internal/session"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "sessions" {
		if err := runSessionsCommand(args[1:]); err != nil {
			log.Fatalf("sessions command failed: %v", err)
		}
		return
	}

	if err := runAskCommand(context.Background(), args); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

func runAskCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("clio", flag.ExitOnError)
	projectFlag := fs.String("project", "", "Path to project root (default: current directory)")
	sessionFlag := fs.String("session", "", "Session id to continue (default: new session)")
	systemFlag := fs.String("system", "", "System instruction for the request")
	tempFlag := fs.Float64("temp", 0, "Sampling temperature override")
	intelligentFlag := fs.Bool("intelligent", false, "Gate @file inclusions on relevance to the prompt")
	memoryFlag := fs.Bool("memory", false, "Prepend relevant memory nodes to the context")

	if err := fs.Parse(args); err != nil {
		return err
	}
	prompt := strings.Join(fs.Args(), " ")
	if prompt == "" {
		return fmt.Errorf("usage: clio [flags] <prompt>")
	}

	projectRoot := *projectFlag
	if projectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
		projectRoot = wd
	}

	env, err := prepareRuntimeEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	opts := assembler.DefaultOptions()
	opts.ExcludePatterns = env.Config.ExcludePatterns
	opts.RespectGitignore = env.Config.RespectGitignore
	opts.EnableIntelligentSelection = *intelligentFlag
	opts.EnableMemoryIntegration = *memoryFlag

	expanded := env.Assembler.BuildContextWithMemory(prompt, projectRoot, opts, nil)

	if env.APIKey == "" {
		// No key means no-LLM mode: print the assembled context and stop.
		fmt.Println(expanded)
		return nil
	}

	resp, err := env.Governor.Dispatch(ctx, expanded, *sessionFlag, *systemFlag, float32(*tempFlag))
	if err != nil {
		return err
	}

	fmt.Println(resp.Content)
	fmt.Fprintf(os.Stderr, "\n[session %s, %d tokens, est. $%.4f]\n",
		resp.SessionID, resp.TotalTokens, resp.Analysis.EstimatedCost)
	return nil
}

func runSessionsCommand(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	deleteFlag := fs.String("delete", "", "Delete a session by id")
	statsFlag := fs.Bool("stats", false, "Show aggregate session statistics")

	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := prepareRuntimeEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	if *deleteFlag != "" {
		if err := env.Sessions.Delete(*deleteFlag); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", *deleteFlag)
		return nil
	}

	if *statsFlag {
		stats, err := env.Sessions.Stats()
		if err != nil {
			return err
		}
		for k, v := range stats {
			fmt.Printf("%-20s %s\n", k, v)
		}
		return nil
	}

	metas, err := env.Sessions.List()
	if err != nil {
		return err
	}
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for _, m := range metas {
		name := m.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s  %-24s %3d entries  %s\n",
			m.ID, name, m.Entries, m.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// runtimeEnv bundles the wired components for one invocation.
type runtimeEnv struct {
	Config      *config.Config
	APIKey      string
	Sessions    *session.Store
	Checkpoints *checkpoint.Store
	Memory      *memory.Store
	Assembler   *assembler.Assembler
	Governor    *governor.Governor
	log         *zap.Logger
}

func (e *runtimeEnv) Close() {
	if e.Checkpoints != nil {
		e.Checkpoints.Close()
	}
	if e.Memory != nil {
		e.Memory.Close()
	}
	if e.log != nil {
		_ = e.log.Sync()
	}
}

func prepareRuntimeEnv() (*runtimeEnv, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}

	manager, err := config.NewManager()
	if err != nil {
		return nil, err
	}
	cfg, err := manager.Load()
	if err != nil {
		return nil, err
	}

	dataDir := filepath.Dir(manager.ConfigPath())
	sessions := session.NewStore(manager.SessionDir(cfg), logger)

	checkpoints, err := checkpoint.NewStore(filepath.Join(dataDir, "checkpoints.db"), logger)
	if err != nil {
		return nil, err
	}
	sessions.AttachCheckpoints(checkpoints)

	mem, err := memory.NewStore(filepath.Join(dataDir, "memory.db"), logger)
	if err != nil {
		checkpoints.Close()
		return nil, err
	}
	sessions.AttachMemory(mem)

	asm := assembler.New(logger)
	asm.AttachMemory(mem)

	kind := provider.Kind(cfg.Provider)
	apiKey := config.ResolveAPIKey(cfg, kind)
	gov := governor.New(sessions, governor.Settings{
		Provider:       kind,
		APIKey:         apiKey,
		Model:          cfg.Model,
		CustomEndpoint: cfg.CustomEndpoint,
		TimeoutSeconds: cfg.TimeoutSeconds,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
	}, logger)
	gov.SetConfirmer(&terminalConfirmer{})

	return &runtimeEnv{
		Config:      cfg,
		APIKey:      apiKey,
		Sessions:    sessions,
		Checkpoints: checkpoints,
		Memory:      mem,
		Assembler:   asm,
		Governor:    gov,
		log:         logger,
	}, nil
}

// terminalConfirmer asks on stderr and reads a y/N answer from stdin.
type terminalConfirmer struct{}

func (t *terminalConfirmer) Confirm(a governor.RequestAnalysis) bool {
	fmt.Fprintf(os.Stderr,
		"Request is large: ~%d input + ~%d output tokens, est. $%.4f. Proceed? [y/N] ",
		a.InputTokens, a.EstimatedOutputTokens, a.EstimatedCost)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
