package atiende

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// App is the message-ingestion path: it connects a Frontend to the
// per-conversation Dispatcher, applying the inbound filters (group, echo,
// empty text, human mode) and routing admin commands. All state it touches is
// injected; there are no package-level singletons.
type App struct {
	frontend   Frontend
	store      ConversationStore
	dispatcher *Dispatcher
	admin      *Admin
	stats      *Stats
	logger     *slog.Logger

	adminConversationID string
}

// AppOption configures an App.
type AppOption func(*App)

// WithAdmin enables the operator command surface for one conversation id.
func WithAdmin(admin *Admin, conversationID string) AppOption {
	return func(a *App) {
		a.admin = admin
		a.adminConversationID = conversationID
	}
}

// WithAppStats sets the stats sink for ingestion counters.
func WithAppStats(s *Stats) AppOption {
	return func(a *App) { a.stats = s }
}

// WithAppLogger sets the structured logger.
func WithAppLogger(l *slog.Logger) AppOption {
	return func(a *App) { a.logger = l }
}

// NewApp creates an App.
func NewApp(frontend Frontend, store ConversationStore, dispatcher *Dispatcher, opts ...AppOption) *App {
	a := &App{
		frontend:   frontend,
		store:      store,
		dispatcher: dispatcher,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.stats == nil {
		a.stats = NewStats()
	}
	if a.logger == nil {
		a.logger = nopLogger
	}
	return a
}

// Run starts the ingestion loop: init the store, poll the frontend, filter
// and enqueue. Messages are handled inline, not in per-message goroutines, so
// two rapid messages from one conversation enqueue in arrival order. Blocks
// until ctx is cancelled, then waits for active drain loops.
func (a *App) Run(ctx context.Context) error {
	if err := a.store.Init(ctx); err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	msgs, err := a.frontend.Poll(ctx)
	if err != nil {
		return fmt.Errorf("frontend poll: %w", err)
	}

	a.logger.Info("app running")
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down, draining queues")
			a.dispatcher.Wait()
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				a.dispatcher.Wait()
				return nil
			}
			a.handle(ctx, msg)
		}
	}
}

// RunWithSignal wraps Run with OS signal handling for graceful shutdown.
func (a *App) RunWithSignal() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}

// handle filters one inbound message and enqueues it for its conversation.
func (a *App) handle(ctx context.Context, msg IncomingMessage) {
	a.stats.Received()

	text := strings.TrimSpace(msg.Text)
	switch {
	case msg.SelfEcho:
		a.stats.Filtered()
		return
	case msg.Group:
		a.stats.Filtered()
		a.logger.Debug("group message ignored", "conversation_id", msg.ConversationID)
		return
	case text == "":
		a.stats.Filtered()
		return
	}

	if a.admin != nil && msg.ConversationID == a.adminConversationID && strings.HasPrefix(text, "!") {
		reply, handled := a.admin.Handle(ctx, text)
		if handled {
			if err := a.frontend.SendReply(ctx, msg.ConversationID, reply); err != nil {
				a.logger.Error("send admin reply", "error", err)
			}
			return
		}
	}

	conv, err := a.store.GetOrCreateConversation(ctx, msg.ConversationID)
	if err != nil {
		a.logger.Error("load conversation", "conversation_id", msg.ConversationID, "error", err)
		return
	}
	if conv.HumanMode {
		a.stats.Filtered()
		a.logger.Debug("human mode, assistant skipped", "conversation_id", conv.ID)
		return
	}

	firstContact := !conv.Known
	if firstContact {
		if err := a.store.MarkKnown(ctx, conv.ID); err != nil {
			a.logger.Warn("mark known", "conversation_id", conv.ID, "error", err)
		}
	}

	_ = a.frontend.SendTyping(ctx, conv.ID)
	a.dispatcher.Enqueue(ctx, conv.ID, text, firstContact)
	a.logger.Info("message accepted",
		"conversation_id", conv.ID,
		"first_contact", firstContact,
		"queue_depth", a.dispatcher.Depth(conv.ID))
}
