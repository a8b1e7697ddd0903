// Package atiende is a customer-support chat bot core that bridges messaging
// platforms to a remote assistant backend with durable per-conversation
// threads and asynchronous runs.
//
// The interesting part is the run lifecycle: the remote context model forbids
// mutating a thread while a run is active, so the core guarantees at most one
// active run per thread, serializes messages per conversation, retries with a
// ladder of shrinking timeout budgets, and reclaims leaked runs in the
// background.
//
// # Core components
//
//   - [ThreadRegistry] - maps conversations to remote threads, creating them
//     lazily and replacing them when their context grows too large.
//   - [RunTracker] - bookkeeping for in-flight runs with cancel-by-thread,
//     cancel-all, and age-based sweeping.
//   - [Invoker] - one request/response cycle: cancel superseded runs, append
//     the message, start a run, poll to completion, dispatch tool calls.
//   - [Escalator] - bounded retries with decreasing budgets, terminating in a
//     fixed user-visible fallback reply.
//   - [Dispatcher] - per-conversation FIFO queues with single-flight drain
//     loops.
//
// External collaborators are narrow interfaces: [AssistantClient] (the remote
// assistant vendor), [Frontend] (the messaging platform), and
// [ConversationStore] (persistence for per-conversation state).
//
// Wiring:
//
//	client := openai.New(apiKey, assistantID)
//	registry := atiende.NewThreadRegistry(client)
//	tracker := atiende.NewRunTracker(client)
//	invoker := atiende.NewInvoker(client, registry, tracker)
//	esc := atiende.NewEscalator(invoker)
//	disp := atiende.NewDispatcher(esc, frontend)
//	app := atiende.NewApp(frontend, store, disp)
//	app.Run(ctx)
package atiende
