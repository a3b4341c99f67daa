package telegram

import (
	"fmt"
	"sync"
	"time"

	"github.com/satibot/satibot/pkg/agent"
	"github.com/satibot/satibot/pkg/logger"
)

// defaultMaxIdle is the eviction threshold: an entry idle for at least this
// long is deinitialized and dropped on the next Cleanup.
const defaultMaxIdle = 30 * time.Minute

// cleanupInterval is how often RunCleanupLoop calls Cleanup.
const cleanupInterval = 30 * time.Minute

// cachedAgent pairs one chat's Agent with its last-use timestamp.
// lastUsedMs is monotonically nondecreasing for an active entry: every
// GetOrCreate bumps it.
type cachedAgent struct {
	agent      *agent.Agent
	lastUsedMs int64
}

// AgentFactory builds a fresh Agent for a session id. The dispatcher supplies
// this so the cache stays agnostic to how an Agent is constructed (shared
// Deps, config, RAG flag).
type AgentFactory func(sessionID string) (*agent.Agent, error)

// SessionCache is the per-chat Agent cache: one mutex covers insert/lookup/
// evict. Once looked up, an Agent is used by exactly one worker at a time —
// per-chat serialization upstream (the dispatcher's per-chat worker) makes
// concurrent use of one entry safe without any additional locking inside
// Agent itself.
type SessionCache struct {
	mu      sync.Mutex
	entries map[int64]*cachedAgent
	factory AgentFactory
	maxIdle time.Duration
	nowMs   func() int64
}

// NewSessionCache builds an empty cache. nowMs lets tests supply a fake
// clock; nil uses time.Now.
func NewSessionCache(factory AgentFactory, nowMs func() int64) *SessionCache {
	if nowMs == nil {
		nowMs = func() int64 { return time.Now().UnixMilli() }
	}
	return &SessionCache{
		entries: make(map[int64]*cachedAgent),
		factory: factory,
		maxIdle: defaultMaxIdle,
		nowMs:   nowMs,
	}
}

// GetOrCreate returns the cached Agent for chatID, creating one via factory
// on first use. It always bumps last_used_ms before returning.
func (c *SessionCache) GetOrCreate(chatID int64) (*agent.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[chatID]; ok {
		entry.lastUsedMs = c.nowMs()
		return entry.agent, nil
	}

	a, err := c.factory(fmt.Sprintf("%d", chatID))
	if err != nil {
		return nil, fmt.Errorf("telegram: create agent for chat %d: %w", chatID, err)
	}

	c.entries[chatID] = &cachedAgent{agent: a, lastUsedMs: c.nowMs()}
	return a, nil
}

// Cleanup evicts every entry idle for at least maxIdle, deinitializing each
// one before dropping it. Returns how many entries were evicted, for
// logging/tests.
func (c *SessionCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowMs()
	evicted := 0
	for chatID, entry := range c.entries {
		if now-entry.lastUsedMs >= c.maxIdle.Milliseconds() {
			entry.agent.Deinit()
			delete(c.entries, chatID)
			evicted++
		}
	}
	if evicted > 0 {
		logger.InfoCF("telegram", "evicted idle chat sessions", map[string]interface{}{
			"count": evicted,
		})
	}
	return evicted
}

// Len reports how many chats currently have a cached Agent.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RunCleanupLoop blocks, running Cleanup every cleanupInterval, until done is
// closed. Intended to run in its own goroutine alongside the poller.
func (c *SessionCache) RunCleanupLoop(done <-chan struct{}) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Cleanup()
		case <-done:
			return
		}
	}
}
