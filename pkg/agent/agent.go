// Package agent implements the ReAct loop: it owns one conversation
// context, drives a bounded iteration loop against a provider, dispatches
// tool calls, and persists the session.
package agent

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/satibot/satibot/pkg/config"
	"github.com/satibot/satibot/pkg/logger"
	"github.com/satibot/satibot/pkg/memory"
	"github.com/satibot/satibot/pkg/metrics"
	"github.com/satibot/satibot/pkg/providers"
	"github.com/satibot/satibot/pkg/session"
	"github.com/satibot/satibot/pkg/tools"
)

// MaxIterations bounds one Run's model turns: a run that hits it returns
// cleanly with whatever was last appended, never an error.
const MaxIterations = 10

// minIndexableChars is indexConversation's floor: turns shorter than this
// are not worth a dedicated vector entry.
const minIndexableChars = 10

// defaultSystemPrompt seeds a fresh context when none is loaded.
const defaultSystemPrompt = "You are a helpful personal assistant. Use the tools available to you when they would help answer the user's request, and reply concisely."

// ShutdownFlag is polled at each iteration boundary; Run returns
// ErrInterrupted as soon as it observes the flag set.
type ShutdownFlag interface {
	IsSet() bool
}

// atomicShutdownFlag is the default ShutdownFlag: a single atomic boolean
// observed cooperatively. An in-flight provider call is never forcibly
// canceled; its natural timeout governs.
type atomicShutdownFlag struct {
	flag atomic.Bool
}

func (f *atomicShutdownFlag) IsSet() bool { return f.flag.Load() }

func (f *atomicShutdownFlag) Set() { f.flag.Store(true) }

// NewShutdownFlag returns a fresh, unset atomic shutdown flag.
func NewShutdownFlag() *atomicShutdownFlag { return &atomicShutdownFlag{} }

// ErrInterrupted is returned by Run when the shutdown flag was observed set
// at an iteration boundary. Session save still runs for whatever was
// committed to the context.
var ErrInterrupted = fmt.Errorf("agent: interrupted")

// Deps bundles the shared, by-reference resources an Agent is constructed
// with. SessionStore and VectorStore are exclusively owned by the caller
// (the session cache / console / CLI) and shared read-heavy/write-serialized
// across every Agent. KnowledgeStore and Extractor are optional: nil
// disables the background fact-extraction pipeline.
type Deps struct {
	SessionStore   *session.Store
	VectorStore    *memory.VectorStore
	KnowledgeStore *memory.KnowledgeStore
	Extractor      *memory.KnowledgeExtractor
	Tracker        *metrics.Tracker
	Shutdown       ShutdownFlag
}

// Agent drives one conversation against one model. It exclusively owns its
// context; the registry is immutable once built.
type Agent struct {
	cfg         config.Config
	sessionID   string
	ragEnabled  bool
	model       string
	context     []providers.Message
	registry    *tools.Registry
	toolCtx     *tools.ToolContext
	provider    providers.LLMProvider
	sessions    *session.Store
	vectorStore *memory.VectorStore
	knowledge   *memory.KnowledgeStore
	extractor   *memory.KnowledgeExtractor
	tracker     *metrics.Tracker
	shutdown    ShutdownFlag
}

// New constructs an Agent for sessionID. It loads prior history from
// deps.SessionStore iff config.Agents.Defaults.LoadChatHistory is set, and
// registers the two built-in tools iff ragEnabled.
func New(cfg config.Config, sessionID string, ragEnabled bool, deps Deps) (*Agent, error) {
	provider, err := providers.Route(cfg, cfg.Agents.Defaults.Model)
	if err != nil {
		return nil, err
	}

	shutdown := deps.Shutdown
	if shutdown == nil {
		shutdown = NewShutdownFlag()
	}

	a := &Agent{
		cfg:         cfg,
		sessionID:   sessionID,
		ragEnabled:  ragEnabled,
		model:       cfg.Agents.Defaults.Model,
		registry:    tools.NewRegistry(),
		provider:    providers.NewRetryingProvider(provider, shutdown),
		sessions:    deps.SessionStore,
		vectorStore: deps.VectorStore,
		knowledge:   deps.KnowledgeStore,
		extractor:   deps.Extractor,
		tracker:     deps.Tracker,
		shutdown:    shutdown,
	}

	if cfg.Agents.Defaults.LoadChatHistory && a.sessions != nil {
		loaded, err := a.sessions.Load(sessionID)
		if err != nil && err != session.ErrNotFound {
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}
		a.context = capHistory(loaded, cfg.Agents.Defaults.MaxChatHistory)
	}

	if ragEnabled && a.vectorStore != nil {
		a.registry.Register(tools.NewVectorUpsertTool(a.vectorStore))
		a.registry.Register(tools.NewVectorSearchTool(a.vectorStore))
	}

	a.toolCtx = &tools.ToolContext{
		Config:        cfg,
		GetEmbeddings: a.getEmbeddings,
	}

	return a, nil
}

// capHistory bounds loaded history to the most recent max messages, keeping
// a leading system message intact so a resumed session never loses its
// prompt to truncation. max <= 0 means unbounded.
func capHistory(messages []providers.Message, max int) []providers.Message {
	if max <= 0 || len(messages) <= max {
		return messages
	}

	var system *providers.Message
	if messages[0].Role == "system" {
		system = &messages[0]
	}

	tail := messages[len(messages)-max:]
	if system == nil || (len(tail) > 0 && tail[0].Role == "system") {
		return tail
	}
	out := make([]providers.Message, 0, len(tail)+1)
	out = append(out, *system)
	out = append(out, tail...)
	return out
}

// getEmbeddings backs the tool context's embedding hook: local embeddings
// when config.embeddingModel is "local" (or unset), otherwise a remote
// embedder built from whichever OpenAI-compatible credential is configured.
func (a *Agent) getEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	if a.cfg.Agents.Defaults.EmbeddingModel == "" || a.cfg.Agents.Defaults.EmbeddingModel == "local" {
		return memory.Generate(texts), nil
	}

	name, cred := providers.PickEmbeddingCredential(a.cfg)
	if cred == nil || cred.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for embedding provider %s", name)
	}
	remote := memory.NewRemoteEmbedder(cred.APIKey, cred.APIBase, a.cfg.Agents.Defaults.EmbeddingModel)
	return remote.Generate(ctx, texts)
}

// Deinit releases the agent's context, registry, and any buffered state.
// Safe to call multiple times.
func (a *Agent) Deinit() {
	a.context = nil
	a.registry = nil
	a.toolCtx = nil
}

// Context returns a snapshot of the agent's current message history. Callers
// must not mutate the returned slice.
func (a *Agent) Context() []providers.Message {
	return a.context
}

// indexConversation runs after a completed Run: when RAG is enabled and
// disableRag is false, the turn just completed is embedded and upserted into
// the shared VectorStore, prefixed by its user prompt, skipping turns under
// minIndexableChars. It indexes one turn rather than rescanning the whole
// history, since VectorStore.Add never deduplicates and a rescan would
// re-add every prior turn on every message.
func (a *Agent) indexConversation(ctx context.Context, userText, assistantText string) {
	if !a.ragEnabled || a.cfg.Agents.Defaults.DisableRag || a.vectorStore == nil {
		return
	}

	entry := fmt.Sprintf("User: %s\nAssistant: %s", userText, assistantText)
	if len(entry) < minIndexableChars {
		return
	}

	vectors, err := a.getEmbeddings(ctx, []string{entry})
	if err != nil {
		logger.WarnCF("agent", "failed to embed conversation turn for indexing", map[string]interface{}{
			"session_id": a.sessionID,
			"error":      err.Error(),
		})
		return
	}
	if len(vectors) == 0 {
		return
	}
	if err := a.vectorStore.Add(entry, vectors[0]); err != nil {
		logger.WarnCF("agent", "failed to index conversation turn", map[string]interface{}{
			"session_id": a.sessionID,
			"error":      err.Error(),
		})
	}
}
