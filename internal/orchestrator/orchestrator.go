// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/tenantchat/internal/gateway"
	"github.com/jeranaias/tenantchat/internal/model"
	"github.com/jeranaias/tenantchat/internal/store"
	"github.com/jeranaias/tenantchat/internal/transport"
	"github.com/jeranaias/tenantchat/internal/util"
)

// TitleHintLength is the rune length of the title sent when a
// conversation is created. The hint is a hard prefix with no ellipsis.
const TitleHintLength = 50

// =============================================================================
// COLLABORATORS
// =============================================================================

// Streamer opens a reply stream. transport.Client implements it.
type Streamer interface {
	Stream(ctx context.Context, req transport.Request, h transport.Handler) error
}

// Gateway creates conversations and posts messages. gateway.Client
// implements it.
type Gateway interface {
	CreateConversation(ctx context.Context, titleHint string) (*gateway.Conversation, error)
	PostMessage(ctx context.Context, threadID, content, modelID string) (*gateway.PostMessageResponse, error)
}

// =============================================================================
// SEND INPUT AND OUTCOME
// =============================================================================

// SendInput is one user turn.
type SendInput struct {
	// Text is the raw user input
	Text string

	// ThreadID is the active thread; empty starts a new one
	ThreadID string

	// ModelKey selects the model; unknown keys use the registry default
	ModelKey string
}

// OutcomeStatus summarizes how a send ended.
type OutcomeStatus int

const (
	// OutcomeRejected: empty input or a send already in flight; nothing changed
	OutcomeRejected OutcomeStatus = iota
	// OutcomeCompleted: the reply is in the store (PersistErr may be set)
	OutcomeCompleted
	// OutcomeFailed: the send stopped in the error state
	OutcomeFailed
	// OutcomeAborted: Abort was called while the send was active
	OutcomeAborted
)

// String returns the outcome name.
func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeRejected:
		return "rejected"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome describes a finished send.
type Outcome struct {
	Status             OutcomeStatus
	ThreadID           string
	UserMessageID      string
	AssistantMessageID string

	// Err is the cause of a failed send
	Err error

	// PersistErr is set when the reply was displayed but not saved
	PersistErr error
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs chat turns against an injected thread store.
type Orchestrator struct {
	store    store.Updater
	streamer Streamer
	gateway  Gateway
	registry *model.Registry
	notifier Notifier
	logger   *log.Logger

	onState  func(State)
	onActive func(threadID string)

	cancelMgr    cancelManager // whole send
	streamCancel cancelManager // open stream

	mu       sync.Mutex
	machine  machine
	inFlight bool
	gen      uint64
	active   string // active thread id
	current  target // thread/message of the in-flight send
}

// target locates the assistant message of the in-flight send.
type target struct {
	threadID  string
	messageID string
}

// New creates an orchestrator. A nil registry selects
// model.DefaultRegistry and a nil notifier discards notifications.
func New(threads store.Updater, streamer Streamer, gw Gateway, registry *model.Registry, notifier Notifier) *Orchestrator {
	if registry == nil {
		registry = model.DefaultRegistry()
	}
	if notifier == nil {
		notifier = discardNotifier{}
	}
	return &Orchestrator{
		store:    threads,
		streamer: streamer,
		gateway:  gw,
		registry: registry,
		notifier: notifier,
		logger:   log.New(io.Discard, "", 0),
	}
}

// WithLogger sets the event logger.
func (o *Orchestrator) WithLogger(logger *log.Logger) *Orchestrator {
	if logger != nil {
		o.logger = logger
	}
	return o
}

// OnStateChange registers a callback invoked after each state change. It
// runs outside internal locks on the goroutine that made the change;
// callers that need the authoritative value should read State.
func (o *Orchestrator) OnStateChange(fn func(State)) *Orchestrator {
	o.onState = fn
	return o
}

// OnActiveThread registers a callback invoked when the active thread id
// changes, including provisional -> backend id migration.
func (o *Orchestrator) OnActiveThread(fn func(threadID string)) *Orchestrator {
	o.onActive = fn
	return o
}

// SetRegistry swaps the model registry. Takes effect on the next send.
func (o *Orchestrator) SetRegistry(r *model.Registry) {
	if r == nil {
		return
	}
	o.mu.Lock()
	o.registry = r
	o.mu.Unlock()
}

// Registry returns the current model registry.
func (o *Orchestrator) Registry() *model.Registry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.registry
}

// State returns the current state. After a send ends it stays StateDone or
// StateError (so the outcome stays observable) until the next Send resets
// the machine; IsBusy is false in both. Abort returns it to StateIdle.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.machine.state
}

// IsBusy reports whether a send is in flight.
func (o *Orchestrator) IsBusy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// ActiveThread returns the id of the active thread.
func (o *Orchestrator) ActiveThread() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// SetActiveThread selects the thread the next send goes to when its input
// names none. It is ignored while a send is in flight.
func (o *Orchestrator) SetActiveThread(id string) {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return
	}
	o.active = id
	cb := o.onActive
	o.mu.Unlock()
	if cb != nil {
		cb(id)
	}
}

// =============================================================================
// ABORT
// =============================================================================

// Abort cancels the in-flight send and forces the idle state. The partial
// assistant text stays as is; its transient flags are cleared. Nothing is
// persisted and no notification is sent. Abort reports false when no send
// was in flight.
func (o *Orchestrator) Abort() bool {
	o.mu.Lock()
	if !o.inFlight {
		o.mu.Unlock()
		return false
	}
	o.gen++
	o.inFlight = false
	o.cancelMgr.cancel()
	o.streamCancel.cancel()
	o.machine.forceIdle()
	cur := o.current
	o.current = target{}
	if cur.messageID != "" {
		o.store.Update(func(prev model.Threads) model.Threads {
			return prev.UpdateMessage(cur.threadID, cur.messageID, (*model.Message).EndStream)
		})
	}
	cb := o.onState
	o.mu.Unlock()

	o.logger.Printf("SEND_ABORT | thread=%s message=%s", cur.threadID, cur.messageID)
	if cb != nil {
		cb(StateIdle)
	}
	return true
}

// =============================================================================
// SEND
// =============================================================================

// Send runs one chat turn and blocks until it ends. See the package
// documentation for the state machine.
func (o *Orchestrator) Send(ctx context.Context, in SendInput) Outcome {
	if strings.TrimSpace(in.Text) == "" {
		return Outcome{Status: OutcomeRejected}
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return Outcome{Status: OutcomeRejected}
	}
	o.inFlight = true
	o.gen++
	s := &sendOp{
		o:     o,
		gen:   o.gen,
		input: in,
		spec:  o.registry.Lookup(in.ModelKey),
		start: time.Now(),
	}
	o.machine.reset()
	o.cancelMgr.replace(cancel)
	o.mu.Unlock()

	defer s.finish()

	return s.run(opCtx)
}

// sendOp is the state of one Send call.
type sendOp struct {
	o     *Orchestrator
	gen   uint64
	input SendInput
	spec  model.ModelSpec
	start time.Time

	threadID    string
	provisional bool
	userID      string
	assistantID string
}

func (s *sendOp) run(ctx context.Context) Outcome {
	o := s.o
	if !s.transition(StateSendingUser) {
		return s.outcome(OutcomeAborted, nil)
	}
	s.insertMessages()
	o.logger.Printf("SEND_START | thread=%s model=%s streaming=%v text_len=%d",
		s.threadID, s.spec.Key, s.spec.Streaming, len(s.input.Text))

	if s.provisional {
		if out, ok := s.createConversation(ctx); !ok {
			return out
		}
	}

	if s.spec.Streaming {
		return s.stream(ctx)
	}
	return s.singleShot(ctx)
}

// insertMessages ensures the thread exists and appends the user message
// and the assistant placeholder before any network round trip.
func (s *sendOp) insertMessages() {
	user := model.NewUserMessage(s.input.Text)
	placeholder := model.NewAssistantPlaceholder()
	s.userID = user.ID
	s.assistantID = placeholder.ID

	threadID := s.input.ThreadID
	var created *model.Thread
	if threadID == "" {
		t := model.NewProvisionalThread(s.spec.Key)
		created = &t
		threadID = t.ID
	} else if existing, ok := s.o.store.Snapshot().Find(threadID); ok {
		s.provisional = existing.Provisional || model.IsProvisionalID(existing.ID)
	} else {
		// Thread selected by id but not loaded: track it under that id.
		t := model.Thread{ID: threadID, UpdatedAt: time.Now(), Model: s.spec.Key, Provisional: model.IsProvisionalID(threadID)}
		created = &t
	}
	if created != nil {
		s.provisional = created.Provisional
	}
	s.threadID = threadID

	s.update(func(prev model.Threads) model.Threads {
		next := prev
		if created != nil {
			next = next.Prepend(*created)
		}
		next = next.AppendMessage(threadID, user)
		return next.AppendMessage(threadID, placeholder)
	})
	s.setActive(threadID)
}

// createConversation migrates the provisional thread to a backend id.
func (s *sendOp) createConversation(ctx context.Context) (Outcome, bool) {
	o := s.o
	if !s.transition(StateCreatingConversation) {
		return s.outcome(OutcomeAborted, nil), false
	}

	hint := util.TruncatePrefix(s.input.Text, TitleHintLength)
	conv, err := o.gateway.CreateConversation(ctx, hint)
	if s.aborted(ctx) {
		return s.outcome(OutcomeAborted, nil), false
	}
	if err != nil {
		o.logger.Printf("SEND_ERROR | phase=create thread=%s error=%v", s.threadID, err)
		s.endPlaceholder()
		s.fail(Notification{
			Title:       "Could not start conversation",
			Description: describeError(err),
			Severity:    SeverityError,
		})
		return s.outcome(OutcomeFailed, err), false
	}

	oldID := s.threadID
	s.update(func(prev model.Threads) model.Threads {
		return prev.Migrate(oldID, conv.ID, conv.Title)
	})
	s.threadID = conv.ID
	s.provisional = false
	s.setActive(conv.ID)
	o.logger.Printf("THREAD_CREATED | local=%s id=%s", oldID, conv.ID)
	return Outcome{}, true
}

// stream consumes the token stream into the placeholder, then persists
// the accumulated content.
func (s *sendOp) stream(ctx context.Context) Outcome {
	o := s.o
	if !s.transition(StateStreamingAssistant) {
		return s.outcome(OutcomeAborted, nil)
	}

	// Cancel any previous stream before opening a new one.
	streamCtx, cancel := context.WithCancel(ctx)
	o.streamCancel.replace(cancel)
	defer cancel()

	var (
		streamErr error // first error event
		closed    bool
		chunks    int
	)

	handler := transport.HandlerFuncs{
		Chunk: func(text string) {
			fragment := SanitizeChunk(text)
			if fragment == "" {
				return
			}
			chunks++
			id := s.assistantID
			s.update(func(prev model.Threads) model.Threads {
				return prev.UpdateMessage(s.threadID, id, func(m *model.Message) {
					m.AppendContent(fragment)
				})
			})
		},
		MessageID: func(id string) {
			s.replaceAssistantID(id)
		},
		Done: func(c transport.Completion) {
			if c.MessageID != "" && c.MessageID != s.assistantID {
				s.replaceAssistantID(c.MessageID)
			}
			if c.ConversationID != "" && c.ConversationID != s.threadID {
				o.logger.Printf("STREAM_CONVERSATION_MISMATCH | thread=%s reported=%s", s.threadID, c.ConversationID)
			}
		},
		Error: func(err error) {
			if streamErr != nil {
				return
			}
			streamErr = err
			o.logger.Printf("SEND_ERROR | phase=stream thread=%s error=%v", s.threadID, err)
			s.fail(Notification{
				Title:       "Reply interrupted",
				Description: describeError(err),
				Severity:    SeverityError,
			})
		},
		Close: func() {
			closed = true
			s.endPlaceholder()
			if streamErr == nil {
				s.transition(StateFinalizing)
			}
		},
	}

	o.logger.Printf("STREAM_OPEN | thread=%s model=%s", s.threadID, s.spec.BackendID)
	err := o.streamer.Stream(streamCtx, transport.Request{
		ModelID:        s.spec.BackendID,
		ModelName:      s.spec.Name,
		Prompt:         s.input.Text,
		ConversationID: s.threadID,
	}, handler)
	o.logger.Printf("STREAM_CLOSE | thread=%s chunks=%d closed=%v error=%v", s.threadID, chunks, closed, err)

	if s.aborted(ctx) || transport.IsAbort(err) {
		return s.outcome(OutcomeAborted, nil)
	}
	if err != nil {
		// Transport failure: HTTP status, network or oversized record
		s.endPlaceholder()
		if streamErr == nil {
			streamErr = err
			s.fail(Notification{
				Title:       "Could not reach the assistant",
				Description: describeError(err),
				Severity:    SeverityError,
			})
		}
		o.logger.Printf("SEND_ERROR | phase=transport thread=%s error=%v", s.threadID, err)
		return s.outcome(OutcomeFailed, streamErr)
	}
	if streamErr != nil {
		return s.outcome(OutcomeFailed, streamErr)
	}

	// Persist what the user saw, read back from the store
	content := ""
	if msg, ok := o.store.Snapshot().FindMessage(s.threadID, s.assistantID); ok {
		content = msg.Content
	}
	_, perr := o.gateway.PostMessage(ctx, s.threadID, content, s.spec.BackendID)
	if s.aborted(ctx) {
		return s.outcome(OutcomeAborted, nil)
	}
	if perr != nil {
		o.logger.Printf("SEND_ERROR | phase=persist thread=%s error=%v", s.threadID, perr)
		s.notify(Notification{
			Title:       "Reply not saved",
			Description: describeError(perr),
			Severity:    SeverityWarning,
		})
	}

	if !s.transition(StateDone) {
		return s.outcome(OutcomeAborted, nil)
	}
	out := s.outcome(OutcomeCompleted, nil)
	out.PersistErr = perr
	s.logDone()
	return out
}

// singleShot posts the user text and fills the placeholder with the reply.
func (s *sendOp) singleShot(ctx context.Context) Outcome {
	o := s.o
	if !s.transition(StateFinalizing) {
		return s.outcome(OutcomeAborted, nil)
	}

	resp, err := o.gateway.PostMessage(ctx, s.threadID, s.input.Text, s.spec.BackendID)
	if s.aborted(ctx) {
		return s.outcome(OutcomeAborted, nil)
	}
	if err != nil {
		o.logger.Printf("SEND_ERROR | phase=post thread=%s error=%v", s.threadID, err)
		s.endPlaceholder()
		s.fail(Notification{
			Title:       "Could not get a reply",
			Description: describeError(err),
			Severity:    SeverityError,
		})
		return s.outcome(OutcomeFailed, err)
	}

	id := s.assistantID
	s.update(func(prev model.Threads) model.Threads {
		return prev.UpdateMessage(s.threadID, id, func(m *model.Message) {
			m.SetFinalContent(resp.AssistantText)
		})
	})
	if resp.MessageID != "" {
		s.replaceAssistantID(resp.MessageID)
	}

	if !s.transition(StateDone) {
		return s.outcome(OutcomeAborted, nil)
	}
	s.logDone()
	return s.outcome(OutcomeCompleted, nil)
}

// =============================================================================
// SEND HELPERS
// =============================================================================

// current reports whether this send still owns the orchestrator. Must be
// called with o.mu held.
func (s *sendOp) current() bool {
	return s.o.inFlight && s.o.gen == s.gen
}

// aborted reports whether the send was aborted.
func (s *sendOp) aborted(ctx context.Context) bool {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	return !s.current() || errors.Is(ctx.Err(), context.Canceled)
}

// update applies fn to the store unless the send has been aborted.
func (s *sendOp) update(fn func(model.Threads) model.Threads) bool {
	o := s.o
	o.mu.Lock()
	defer o.mu.Unlock()
	if !s.current() {
		return false
	}
	o.store.Update(fn)
	if s.assistantID != "" {
		o.current = target{threadID: s.threadID, messageID: s.assistantID}
	}
	return true
}

// transition advances the machine and fires the observer.
func (s *sendOp) transition(next State) bool {
	o := s.o
	o.mu.Lock()
	if !s.current() {
		o.mu.Unlock()
		return false
	}
	if err := o.machine.advance(next); err != nil {
		o.mu.Unlock()
		o.logger.Printf("STATE_ERROR | %v", err)
		return false
	}
	cb := o.onState
	o.mu.Unlock()

	if cb != nil {
		cb(next)
	}
	return true
}

// fail moves to the error state and notifies the user once.
func (s *sendOp) fail(n Notification) {
	o := s.o
	o.mu.Lock()
	if !s.current() {
		o.mu.Unlock()
		return
	}
	if o.machine.state == StateError {
		o.mu.Unlock()
		return
	}
	advanced := o.machine.advance(StateError) == nil
	cb := o.onState
	o.mu.Unlock()

	o.notifier.Notify(n)
	if advanced && cb != nil {
		cb(StateError)
	}
}

// notify sends a notification unless the send has been aborted.
func (s *sendOp) notify(n Notification) {
	s.o.mu.Lock()
	ok := s.current()
	s.o.mu.Unlock()
	if ok {
		s.o.notifier.Notify(n)
	}
}

// setActive records the active thread and fires the observer.
func (s *sendOp) setActive(id string) {
	o := s.o
	o.mu.Lock()
	if !s.current() {
		o.mu.Unlock()
		return
	}
	o.active = id
	cb := o.onActive
	o.mu.Unlock()

	if cb != nil {
		cb(id)
	}
}

// endPlaceholder clears the transient flags of the assistant message.
func (s *sendOp) endPlaceholder() {
	id := s.assistantID
	s.update(func(prev model.Threads) model.Threads {
		return prev.UpdateMessage(s.threadID, id, (*model.Message).EndStream)
	})
}

// replaceAssistantID swaps the local placeholder id for the backend id.
func (s *sendOp) replaceAssistantID(newID string) {
	if newID == "" || newID == s.assistantID {
		return
	}
	oldID := s.assistantID
	if s.update(func(prev model.Threads) model.Threads {
		return prev.UpdateMessage(s.threadID, oldID, func(m *model.Message) {
			m.ID = newID
		})
	}) {
		s.assistantID = newID
		s.o.mu.Lock()
		if s.current() {
			s.o.current.messageID = newID
		}
		s.o.mu.Unlock()
	}
}

// finish clears the in-flight flag unless an abort already did. A send
// cut short by its parent context is treated like an abort.
func (s *sendOp) finish() {
	o := s.o
	o.mu.Lock()
	if o.gen != s.gen {
		o.mu.Unlock()
		return
	}
	forced := o.machine.state.IsActive()
	if forced {
		o.machine.forceIdle()
		if cur := o.current; cur.messageID != "" {
			o.store.Update(func(prev model.Threads) model.Threads {
				return prev.UpdateMessage(cur.threadID, cur.messageID, (*model.Message).EndStream)
			})
		}
	}
	o.inFlight = false
	o.current = target{}
	o.cancelMgr.cancel()
	o.streamCancel.cancel()
	cb := o.onState
	o.mu.Unlock()

	if forced {
		o.logger.Printf("SEND_ABORT | thread=%s reason=context", s.threadID)
		if cb != nil {
			cb(StateIdle)
		}
	}
}

func (s *sendOp) outcome(status OutcomeStatus, err error) Outcome {
	return Outcome{
		Status:             status,
		ThreadID:           s.threadID,
		UserMessageID:      s.userID,
		AssistantMessageID: s.assistantID,
		Err:                err,
	}
}

func (s *sendOp) logDone() {
	s.o.logger.Printf("SEND_DONE | thread=%s message=%s duration=%s",
		s.threadID, s.assistantID, time.Since(s.start).Round(time.Millisecond))
}

// describeError renders an error for a notification body.
func describeError(err error) string {
	var statusErr *transport.StatusError
	switch {
	case errors.As(err, &statusErr):
		return util.TruncateRunes(statusErr.Detail, 200)
	case errors.Is(err, gateway.ErrUnauthorized):
		return "The server rejected the credentials for this tenant."
	case gateway.IsRetryable(err):
		return util.TruncateRunes(err.Error(), 200) + " Try again in a moment."
	default:
		return util.TruncateRunes(err.Error(), 200)
	}
}
