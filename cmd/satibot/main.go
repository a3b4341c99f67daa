// Command satibot is the CLI entry point: it dispatches to one of the
// front-ends or maintenance subcommands (agent, console, telegram,
// vector-db, status, test-llm).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/satibot/satibot/pkg/agent"
	"github.com/satibot/satibot/pkg/config"
	"github.com/satibot/satibot/pkg/console"
	"github.com/satibot/satibot/pkg/logger"
	"github.com/satibot/satibot/pkg/memory"
	"github.com/satibot/satibot/pkg/metrics"
	"github.com/satibot/satibot/pkg/providers"
	"github.com/satibot/satibot/pkg/session"
	"github.com/satibot/satibot/pkg/telegram"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run dispatches the requested subcommand, returning the process exit code:
// 0 on normal termination, non-zero on a fatal configuration error.
func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	workspace := os.Getenv("SATIBOT_WORKSPACE")
	if workspace == "" {
		workspace = "."
	}

	cfg, err := config.Load(filepath.Join(workspace, "config.json"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "satibot: failed to load config: %v\n", err)
		return 1
	}

	switch args[0] {
	case "agent":
		return cmdAgent(cfg, workspace, args[1:])
	case "console":
		return cmdConsole(cfg, workspace)
	case "telegram":
		return cmdTelegram(cfg, workspace)
	case "vector-db":
		return cmdVectorDB(cfg, workspace, args[1:])
	case "status":
		return cmdStatus(cfg, workspace)
	case "test-llm":
		return cmdTestLLM(cfg)
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "satibot: unknown subcommand %q\n", args[0])
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: satibot <subcommand> [args]

subcommands:
  agent "<prompt>"        run one agent turn non-interactively and exit
  console                 interactive REPL front-end
  telegram                run the Telegram long-poll dispatcher
  vector-db <op> [args]   list | add "<text>" | search "<query>" [k] | stats
  status                  print configuration and storage summary
  test-llm                send a minimal request to the configured model`)
}

// newDeps builds the shared, process-lifetime resources every front-end
// wires into its Agent(s): the session store, the vector store, the token
// tracker, and (when the knowledge store opens) the knowledge store, plus an
// extractor when the configured model routes to a provider.
func newDeps(cfg config.Config, workspace string) (agent.Deps, error) {
	sessions, err := session.NewStore(filepath.Join(workspace, "sessions"))
	if err != nil {
		return agent.Deps{}, fmt.Errorf("open session store: %w", err)
	}

	vectorStore := memory.NewVectorStore(filepath.Join(workspace, "vector_db.json"))
	if err := vectorStore.Load(); err != nil {
		return agent.Deps{}, fmt.Errorf("load vector store: %w", err)
	}

	deps := agent.Deps{
		SessionStore: sessions,
		VectorStore:  vectorStore,
		Tracker:      metrics.NewTracker(workspace),
	}

	knowledge, err := memory.NewKnowledgeStore(workspace, memory.ResolveKnowledgeEmbeddingFunc(cfg))
	if err != nil {
		logger.WarnCF("cmd", "knowledge store unavailable, background extraction disabled", map[string]interface{}{
			"error": err.Error(),
		})
		return deps, nil
	}
	deps.KnowledgeStore = knowledge

	if extractorProvider, err := providers.Route(cfg, cfg.Agents.Defaults.Model); err == nil {
		deps.Extractor = memory.NewKnowledgeExtractor(extractorProvider, cfg.Agents.Defaults.Model, knowledge)
	}

	return deps, nil
}

func cmdAgent(cfg config.Config, workspace string, args []string) int {
	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	sessionID := fs.String("session", "cli-"+uuid.NewString(), "session id to use/resume")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, `usage: satibot agent [-session id] "<prompt>"`)
		return 1
	}
	prompt := fs.Arg(0)

	deps, err := newDeps(cfg, workspace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "satibot: %v\n", err)
		return 1
	}

	a, err := agent.New(cfg, *sessionID, true, deps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "satibot: %v\n", err)
		return 1
	}

	err = a.Run(context.Background(), prompt, func(delta string) {
		fmt.Print(delta)
	})
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "satibot: agent run failed: %v\n", err)
		return 1
	}
	return 0
}

func cmdConsole(cfg config.Config, workspace string) int {
	// Keep the REPL's terminal free of log noise: everything the deeper
	// packages log goes to a file under the workspace instead of stderr.
	if logFile, err := os.OpenFile(filepath.Join(workspace, "satibot.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
		logger.SetOutput(logFile)
		defer logFile.Close()
	}

	deps, err := newDeps(cfg, workspace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "satibot: %v\n", err)
		return 1
	}

	shutdown := agent.NewShutdownFlag()
	deps.Shutdown = shutdown

	a, err := agent.New(cfg, "console", true, deps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "satibot: %v\n", err)
		return 1
	}

	repl, err := console.New(a, workspace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "satibot: %v\n", err)
		return 1
	}
	defer repl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown.Set()
	}()

	if err := repl.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "satibot: %v\n", err)
		return 1
	}
	return 0
}

func cmdTelegram(cfg config.Config, workspace string) int {
	if cfg.Tools.Telegram == nil || cfg.Tools.Telegram.BotToken == "" {
		fmt.Fprintln(os.Stderr, "satibot: tools.telegram.botToken is not configured")
		return 1
	}

	deps, err := newDeps(cfg, workspace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "satibot: %v\n", err)
		return 1
	}

	// One process-wide shutdown flag, shared by every agent the session
	// cache constructs, so an in-flight run observes SIGINT/SIGTERM at its
	// next iteration boundary and returns Interrupted.
	shutdown := agent.NewShutdownFlag()
	deps.Shutdown = shutdown

	client, err := telegram.NewClient(cfg.Tools.Telegram.BotToken)
	if err != nil {
		fmt.Fprintf(os.Stderr, "satibot: %v\n", err)
		return 1
	}

	factory := func(sessionID string) (*agent.Agent, error) {
		return agent.New(cfg, sessionID, true, deps)
	}
	cache := telegram.NewSessionCache(factory, nil)
	dispatcher := telegram.NewDispatcher(client, cache)
	if cfg.Tools.Telegram.ChatID != "" {
		if chatID, err := strconv.ParseInt(cfg.Tools.Telegram.ChatID, 10, 64); err == nil {
			dispatcher.SetDefaultChat(chatID)
		} else {
			logger.WarnCF("cmd", "tools.telegram.chatId is not a valid integer, shutdown notice disabled", map[string]interface{}{
				"chat_id": cfg.Tools.Telegram.ChatID,
			})
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown.Set()
	}()

	cleanupDone := make(chan struct{})
	go func() {
		cache.RunCleanupLoop(ctx.Done())
		close(cleanupDone)
	}()

	logger.InfoCF("cmd", "telegram dispatcher starting", nil)
	if err := dispatcher.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "satibot: telegram dispatcher failed: %v\n", err)
		return 1
	}
	<-cleanupDone
	return 0
}

func cmdVectorDB(cfg config.Config, workspace string, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, `usage: satibot vector-db <list|add|search|stats> [args]`)
		return 1
	}

	vectorStore := memory.NewVectorStore(filepath.Join(workspace, "vector_db.json"))
	if err := vectorStore.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "satibot: %v\n", err)
		return 1
	}

	embed := func(ctx context.Context, texts []string) ([][]float64, error) {
		if cfg.Agents.Defaults.EmbeddingModel == "" || cfg.Agents.Defaults.EmbeddingModel == "local" {
			return memory.Generate(texts), nil
		}
		name, cred := providers.PickEmbeddingCredential(cfg)
		if cred == nil || cred.APIKey == "" {
			return nil, fmt.Errorf("no API key configured for embedding provider %s", name)
		}
		return memory.NewRemoteEmbedder(cred.APIKey, cred.APIBase, cfg.Agents.Defaults.EmbeddingModel).Generate(ctx, texts)
	}

	switch args[0] {
	case "list":
		fmt.Printf("%d entries in %s\n", vectorStore.Len(), filepath.Join(workspace, "vector_db.json"))
		return 0
	case "stats":
		fmt.Printf("entries: %d\n", vectorStore.Len())
		return 0
	case "add":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, `usage: satibot vector-db add "<text>"`)
			return 1
		}
		vectors, err := embed(context.Background(), []string{args[1]})
		if err != nil {
			fmt.Fprintf(os.Stderr, "satibot: %v\n", err)
			return 1
		}
		if err := vectorStore.Add(args[1], vectors[0]); err != nil {
			fmt.Fprintf(os.Stderr, "satibot: %v\n", err)
			return 1
		}
		fmt.Println("added")
		return 0
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, `usage: satibot vector-db search "<query>" [k]`)
			return 1
		}
		k := 5
		if len(args) >= 3 {
			fmt.Sscanf(args[2], "%d", &k)
		}
		vectors, err := embed(context.Background(), []string{args[1]})
		if err != nil {
			fmt.Fprintf(os.Stderr, "satibot: %v\n", err)
			return 1
		}
		for i, e := range vectorStore.Search(vectors[0], k) {
			fmt.Printf("%d. %s\n", i+1, e.Text)
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "satibot: unknown vector-db operation %q\n", args[0])
		return 1
	}
}

func cmdStatus(cfg config.Config, workspace string) int {
	vectorStore := memory.NewVectorStore(filepath.Join(workspace, "vector_db.json"))
	_ = vectorStore.Load()

	fmt.Printf("workspace: %s\n", workspace)
	fmt.Printf("model: %s\n", cfg.Agents.Defaults.Model)
	fmt.Printf("embedding model: %s\n", cfg.Agents.Defaults.EmbeddingModel)
	fmt.Printf("rag disabled: %v\n", cfg.Agents.Defaults.DisableRag)
	fmt.Printf("load chat history: %v\n", cfg.Agents.Defaults.LoadChatHistory)
	fmt.Printf("vector store entries: %d\n", vectorStore.Len())
	fmt.Printf("providers configured: openrouter=%v anthropic=%v openai=%v groq=%v\n",
		cfg.Providers.OpenRouter != nil && cfg.Providers.OpenRouter.APIKey != "",
		cfg.Providers.Anthropic != nil && cfg.Providers.Anthropic.APIKey != "",
		cfg.Providers.OpenAI != nil && cfg.Providers.OpenAI.APIKey != "",
		cfg.Providers.Groq != nil && cfg.Providers.Groq.APIKey != "")
	fmt.Printf("telegram configured: %v\n", cfg.Tools.Telegram != nil && cfg.Tools.Telegram.BotToken != "")
	return 0
}

func cmdTestLLM(cfg config.Config) int {
	provider, err := providers.Route(cfg, cfg.Agents.Defaults.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "satibot: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := provider.ChatStream(ctx, []providers.Message{
		{Role: "user", Content: "Reply with the single word: pong"},
	}, nil, cfg.Agents.Defaults.Model, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "satibot: test-llm failed: %v\n", err)
		return 1
	}

	fmt.Printf("model: %s\nprovider: %s\nresponse: %s\n", cfg.Agents.Defaults.Model, provider.Name(), resp.Content)
	return 0
}
