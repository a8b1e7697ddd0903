package atiende

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// --- fake assistant backend ---

// runStep is one observed snapshot in a scripted run's lifecycle.
type runStep struct {
	status    RunStatus
	toolCalls []ToolCall
	lastError string
}

// fakeRun advances through its steps on every GetRun/SubmitToolOutputs.
type fakeRun struct {
	id        string
	threadID  string
	steps     []runStep
	idx       int
	cancelled bool
}

func (r *fakeRun) current() runStep {
	i := r.idx
	if i >= len(r.steps) {
		i = len(r.steps) - 1
	}
	return r.steps[i]
}

func (r *fakeRun) snapshot() Run {
	if r.cancelled {
		return Run{ID: r.id, ThreadID: r.threadID, Status: RunCancelled}
	}
	step := r.current()
	return Run{
		ID:        r.id,
		ThreadID:  r.threadID,
		Status:    step.status,
		LastError: step.lastError,
		ToolCalls: step.toolCalls,
	}
}

// fakeAssistant is an in-memory AssistantClient with scripted run behavior.
// Each CreateRun consumes the next script from scripts; an exhausted script
// list defaults to an immediately-completed run. When a run reaches
// completed, the configured reply is appended to the thread as an
// assistant message.
type fakeAssistant struct {
	mu sync.Mutex

	reply   string
	scripts [][]runStep

	createThreadErr  error
	createThreadHook func() // runs at the top of CreateThread, before any locking

	threadSeq int
	runSeq    int
	runs      map[string]*fakeRun
	messages  map[string][]ThreadMessage // oldest first
	cancels   []string                   // run ids, in call order
	submitted [][]ToolOutput
	runTools  [][]ToolDefinition // definitions passed to each CreateRun
}

func newFakeAssistant(reply string) *fakeAssistant {
	return &fakeAssistant{
		reply:    reply,
		runs:     make(map[string]*fakeRun),
		messages: make(map[string][]ThreadMessage),
	}
}

func (f *fakeAssistant) CreateThread(_ context.Context) (string, error) {
	if f.createThreadHook != nil {
		f.createThreadHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createThreadErr != nil {
		return "", f.createThreadErr
	}
	f.threadSeq++
	return fmt.Sprintf("thread-%d", f.threadSeq), nil
}

func (f *fakeAssistant) AppendMessage(_ context.Context, threadID, role, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[threadID] = append(f.messages[threadID], ThreadMessage{
		ID: fmt.Sprintf("msg-%d", len(f.messages[threadID])+1), Role: role, Text: text,
		CreatedAt: time.Now().Unix(),
	})
	return nil
}

func (f *fakeAssistant) CreateRun(_ context.Context, threadID string, tools []ToolDefinition) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runTools = append(f.runTools, tools)
	steps := []runStep{{status: RunCompleted}}
	if f.runSeq < len(f.scripts) {
		steps = f.scripts[f.runSeq]
	}
	f.runSeq++
	run := &fakeRun{
		id:       fmt.Sprintf("run-%d", f.runSeq),
		threadID: threadID,
		steps:    steps,
	}
	f.runs[run.id] = run
	f.noteCompletion(run)
	return run.snapshot(), nil
}

func (f *fakeAssistant) GetRun(_ context.Context, _, runID string) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return Run{}, fmt.Errorf("no such run %s", runID)
	}
	run.idx++
	f.noteCompletion(run)
	return run.snapshot(), nil
}

func (f *fakeAssistant) CancelRun(_ context.Context, _, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, runID)
	if run, ok := f.runs[runID]; ok {
		run.cancelled = true
	}
	return nil
}

func (f *fakeAssistant) ListMessages(_ context.Context, threadID string, limit int) ([]ThreadMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.messages[threadID]
	out := make([]ThreadMessage, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- { // newest first
		out = append(out, stored[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAssistant) SubmitToolOutputs(_ context.Context, _, runID string, outputs []ToolOutput) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, outputs)
	run, ok := f.runs[runID]
	if !ok {
		return Run{}, fmt.Errorf("no such run %s", runID)
	}
	run.idx++
	f.noteCompletion(run)
	return run.snapshot(), nil
}

// noteCompletion appends the canned assistant reply when a run completes.
// Callers hold f.mu.
func (f *fakeAssistant) noteCompletion(run *fakeRun) {
	if run.cancelled || run.current().status != RunCompleted {
		return
	}
	f.messages[run.threadID] = append(f.messages[run.threadID], ThreadMessage{
		ID: fmt.Sprintf("msg-%d", len(f.messages[run.threadID])+1), Role: "assistant", Text: f.reply,
		CreatedAt: time.Now().Unix(),
	})
}

func (f *fakeAssistant) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancels)
}

func (f *fakeAssistant) userMessages(threadID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages[threadID] {
		if m.Role == "user" {
			out = append(out, m.Text)
		}
	}
	return out
}

var _ AssistantClient = (*fakeAssistant)(nil)

// --- fake frontend ---

type sentReply struct {
	conversationID string
	text           string
	at             time.Time
}

type fakeFrontend struct {
	mu      sync.Mutex
	in      chan IncomingMessage
	replies []sentReply
}

func newFakeFrontend() *fakeFrontend {
	return &fakeFrontend{in: make(chan IncomingMessage, 16)}
}

func (f *fakeFrontend) Poll(_ context.Context) (<-chan IncomingMessage, error) {
	return f.in, nil
}

func (f *fakeFrontend) SendReply(_ context.Context, conversationID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, sentReply{conversationID: conversationID, text: text, at: time.Now()})
	return nil
}

func (f *fakeFrontend) SendTyping(_ context.Context, _ string) error { return nil }

func (f *fakeFrontend) sent() []sentReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentReply(nil), f.replies...)
}

var _ Frontend = (*fakeFrontend)(nil)

// --- in-memory conversation store ---

type memStore struct {
	mu    sync.Mutex
	convs map[string]Conversation
}

func newMemStore() *memStore {
	return &memStore{convs: make(map[string]Conversation)}
}

func (s *memStore) GetOrCreateConversation(_ context.Context, id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		return c, nil
	}
	c := Conversation{ID: id, CreatedAt: NowUnix(), UpdatedAt: NowUnix()}
	s.convs[id] = c
	return c, nil
}

func (s *memStore) SetHumanMode(_ context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convs[id]
	c.ID = id
	c.HumanMode = enabled
	s.convs[id] = c
	return nil
}

func (s *memStore) MarkKnown(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convs[id]
	c.ID = id
	c.Known = true
	s.convs[id] = c
	return nil
}

func (s *memStore) IncrementFailures(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convs[id]
	c.ID = id
	c.Failures++
	s.convs[id] = c
	return c.Failures, nil
}

func (s *memStore) ResetFailures(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convs[id]
	c.ID = id
	c.Failures = 0
	s.convs[id] = c
	return nil
}

func (s *memStore) Init(_ context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

var _ ConversationStore = (*memStore)(nil)
