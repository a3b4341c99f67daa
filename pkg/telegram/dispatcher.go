package telegram

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mymmrac/telego"
	"golang.org/x/sync/errgroup"

	"github.com/satibot/satibot/pkg/agent"
	"github.com/satibot/satibot/pkg/bus"
	"github.com/satibot/satibot/pkg/logger"
	"github.com/satibot/satibot/pkg/providers"
)

// pollErrorBackoff is how long the poller sleeps after a failed GetUpdates
// call before retrying. The offset is never advanced on a poll error.
const pollErrorBackoff = 2 * time.Second

// typingInterval is how often the typing-indicator side channel re-posts the
// "typing" action while a reply is in flight.
const typingInterval = 5 * time.Second

// streamEditInterval throttles how often the streaming preview message is
// edited; editing on every token delta would hammer the Bot API.
const streamEditInterval = 1500 * time.Millisecond

// mailboxSize bounds how many unprocessed messages one chat's worker can
// queue before the dispatcher starts dropping the oldest (logged, not
// silent): long-poll batches are small and a chat worker rarely falls this
// far behind in practice.
const mailboxSize = 64

// update is one inbound text message routed to a chat's worker.
type update struct {
	chatID int64
	text   string
}

// Dispatcher is the Telegram ingest/dispatch engine: it owns the poll
// offset, a per-chat session cache, and one worker goroutine per chat seen
// since Run started (kept until shutdown), coordinated with
// golang.org/x/sync/errgroup.
// Messages within one chat are serialized; distinct chats run in parallel.
type Dispatcher struct {
	client Client
	cache  *SessionCache

	nextOffset atomic.Int64

	workersMu sync.Mutex
	workers   map[int64]chan update

	group         *errgroup.Group
	shutdown      chan struct{}
	closeOnce     sync.Once
	defaultChatID int64
	hasDefault    bool
}

// NewDispatcher wires a Client and SessionCache into a ready-to-run
// Dispatcher. The poll offset starts at 0.
func NewDispatcher(client Client, cache *SessionCache) *Dispatcher {
	return &Dispatcher{
		client:   client,
		cache:    cache,
		workers:  make(map[int64]chan update),
		group:    &errgroup.Group{},
		shutdown: make(chan struct{}),
	}
}

// SetDefaultChat records tools.telegram.chatId, the chat the shutdown notice
// is sent to. Optional: a dispatcher with no default chat configured skips
// the notice rather than guessing a chat to notify.
func (d *Dispatcher) SetDefaultChat(chatID int64) {
	d.defaultChatID = chatID
	d.hasDefault = true
}

// Offset reports the poller's current next_offset. The offset is owned by
// the poll loop; this atomic load exists for telemetry and tests.
func (d *Dispatcher) Offset() int64 {
	return d.nextOffset.Load()
}

// Run drives the long-poll loop until ctx is canceled or Stop is called.
// It blocks until every in-flight chat worker has drained, so callers can
// rely on Run returning only after a clean shutdown.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer func() {
		d.broadcastShutdownNotice(context.Background())
		d.closeAllMailboxes()
		_ = d.group.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.shutdown:
			return nil
		default:
		}

		batch, err := d.client.GetUpdates(ctx, int(d.nextOffset.Load()))
		if err != nil {
			logPollError(err)
			select {
			case <-time.After(pollErrorBackoff):
			case <-ctx.Done():
				return nil
			case <-d.shutdown:
				return nil
			}
			continue
		}

		for _, u := range batch {
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			d.route(ctx, update{chatID: u.Message.Chat.ID, text: u.Message.Text})
		}

		d.nextOffset.Store(int64(nextOffsetAfter(int(d.nextOffset.Load()), batch)))
	}
}

// Stop signals Run to stop polling and drain. Safe to call multiple times
// and from any goroutine.
func (d *Dispatcher) Stop() {
	d.closeOnce.Do(func() { close(d.shutdown) })
}

// nextOffsetAfter computes the offset discipline in isolation so it's
// directly unit-testable: next_offset becomes max(update_id)+1 across the
// batch, or is left unchanged if the batch was empty. Getting this wrong
// would make the poller re-receive the same batch forever.
func nextOffsetAfter(current int, batch []telego.Update) int {
	if len(batch) == 0 {
		return current
	}
	maxID := batch[0].UpdateID
	for _, u := range batch[1:] {
		if u.UpdateID > maxID {
			maxID = u.UpdateID
		}
	}
	return maxID + 1
}

// route hands one inbound update to its chat's worker, creating the worker
// (and its mailbox) on first use. Within a chat, messages are processed one
// at a time and in arrival order; across chats, workers run concurrently.
// Workers inherit the poll loop's ctx so a canceled run is observable by
// in-flight agent calls.
func (d *Dispatcher) route(ctx context.Context, u update) {
	d.workersMu.Lock()
	mailbox, ok := d.workers[u.chatID]
	if !ok {
		mailbox = make(chan update, mailboxSize)
		d.workers[u.chatID] = mailbox
		d.group.Go(func() error {
			d.runChatWorker(ctx, u.chatID, mailbox)
			return nil
		})
	}
	d.workersMu.Unlock()

	select {
	case mailbox <- u:
	default:
		logger.WarnCF("telegram", "chat mailbox full, dropping oldest pending message", map[string]interface{}{
			"chat_id": u.chatID,
		})
		select {
		case <-mailbox:
		default:
		}
		mailbox <- u
	}
}

// runChatWorker serially processes every update enqueued for one chat until
// its mailbox is closed at shutdown.
func (d *Dispatcher) runChatWorker(ctx context.Context, chatID int64, mailbox chan update) {
	for u := range mailbox {
		d.handleMessage(ctx, u)
	}
}

// handleMessage runs one message through the agent cache, streams the reply
// with a typing indicator visible throughout, and sends the final text back
// chunked to Telegram's 4096-scalar limit.
func (d *Dispatcher) handleMessage(ctx context.Context, u update) {
	a, err := d.cache.GetOrCreate(u.chatID)
	if err != nil {
		logger.ErrorCF("telegram", "failed to get or create agent", map[string]interface{}{
			"chat_id": u.chatID,
			"error":   err.Error(),
		})
		d.sendBestEffort(ctx, u.chatID, "Sorry, something went wrong setting up this chat.")
		return
	}

	typingDone := d.startTypingIndicator(ctx, u.chatID)
	defer close(typingDone)

	preview := &streamPreview{client: d.client, chatID: u.chatID}
	notifier := bus.NewStreamNotifier(streamEditInterval, preview.update)
	err = a.Run(ctx, u.text, func(delta string) { notifier.Append(delta) })
	notifier.Flush()

	if err != nil {
		if err == agent.ErrInterrupted {
			return
		}
		logger.ErrorCF("telegram", "agent run failed", map[string]interface{}{
			"chat_id": u.chatID,
			"error":   err.Error(),
		})
		d.sendBestEffort(ctx, u.chatID, fmt.Sprintf("Sorry, I ran into an error: %v", err))
		return
	}

	reply := lastAssistantText(a.Context())
	if reply == "" {
		return
	}
	chunks := Chunk(reply)
	if len(chunks) > 0 && preview.finalize(ctx, chunks[0]) {
		chunks = chunks[1:]
	}
	for _, chunk := range chunks {
		if _, sendErr := d.client.SendMessage(ctx, u.chatID, chunk); sendErr != nil {
			logger.ErrorCF("telegram", "failed to send reply chunk", map[string]interface{}{
				"chat_id": u.chatID,
				"error":   sendErr.Error(),
			})
			return
		}
	}
}

// startTypingIndicator posts a typing action immediately and every
// typingInterval thereafter until the returned channel is closed. It always
// terminates as soon as done is closed, never lingering past the reply it
// was spawned for.
func (d *Dispatcher) startTypingIndicator(ctx context.Context, chatID int64) chan struct{} {
	done := make(chan struct{})
	go func() {
		_ = d.client.SendTyping(ctx, chatID)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = d.client.SendTyping(ctx, chatID)
			}
		}
	}()
	return done
}

// sendBestEffort sends text to chatID, logging but swallowing any error:
// used for error-path notices where there's nothing more useful to do.
func (d *Dispatcher) sendBestEffort(ctx context.Context, chatID int64, text string) {
	if _, err := d.client.SendMessage(ctx, chatID, text); err != nil {
		logger.WarnCF("telegram", "best-effort send failed", map[string]interface{}{
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
}

// broadcastShutdownNotice posts one best-effort "shutting down" notice to
// the configured default chat. A no-op when no default chat was configured.
func (d *Dispatcher) broadcastShutdownNotice(ctx context.Context) {
	if !d.hasDefault {
		return
	}
	d.sendBestEffort(ctx, d.defaultChatID, "The bot is shutting down. Your conversation has been saved.")
}

// closeAllMailboxes closes every chat worker's mailbox so runChatWorker's
// range loop exits once it drains whatever was already queued.
func (d *Dispatcher) closeAllMailboxes() {
	d.workersMu.Lock()
	defer d.workersMu.Unlock()
	for _, mailbox := range d.workers {
		close(mailbox)
	}
}

// lastAssistantText returns the content of the most recent assistant message
// with non-empty text anywhere in the context, or "" if there is none.
// Earlier turns are searched too, so the result can come from a previous
// run.
func lastAssistantText(messages []providers.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}
