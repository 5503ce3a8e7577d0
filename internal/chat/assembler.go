package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/agentk/internal/ai"
	"github.com/suPer8Hu/agentk/internal/logging"
	"github.com/suPer8Hu/agentk/internal/store"
)

type State string

const (
	StateIdle      State = "idle"
	StateComposing State = "composing"
	StateAwaiting  State = "awaiting_response"
	StateSettled   State = "settled"
	StateFailed    State = "failed"
)

// Selection is the active conversation target.
type Selection struct {
	SessionID string `json:"session_id"`
	ModelID   string `json:"model_id"`
	Shared    bool   `json:"shared"`
}

// ViewMessage is one rendered entry. Pending placeholders and failed turns
// have ID 0 and exist only in memory.
type ViewMessage struct {
	store.Message
	Pending bool   `json:"pending,omitempty"`
	Error   string `json:"error,omitempty"`
}

type View struct {
	State     State         `json:"state"`
	Selection Selection     `json:"selection"`
	Draft     string        `json:"draft,omitempty"`
	Messages  []ViewMessage `json:"messages"`
}

// TurnResult reports what a submit or resubmit persisted. Stale is set when
// the selection changed while the turn was in flight; the messages are still
// stored under their own session but the view was left alone.
type TurnResult struct {
	SessionID string         `json:"session_id"`
	User      *store.Message `json:"user,omitempty"`
	Assistant *store.Message `json:"assistant,omitempty"`
	Stale     bool           `json:"stale"`
}

// ModelResolver resolves the active model id to its catalog entry.
type ModelResolver interface {
	Lookup(ctx context.Context, id string) (store.Model, error)
}

type Options struct {
	// Models is optional; without it the model name falls back to its id.
	Models   ModelResolver
	Notifier Notifier
	Tokens   ai.TokenPolicy
	Logger   *zap.Logger
}

// Assembler drives one conversation view: it builds request context from the
// ledger, calls the generator, and keeps the visible message list in step
// with the store.
type Assembler struct {
	sessions *Registry
	ledger   *Ledger
	gen      ai.Generator
	models   ModelResolver
	notify   Notifier
	tokens   ai.TokenPolicy
	log      *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	sel   Selection
	state State
	draft string
	// epoch changes whenever the session or model changes; in-flight turns
	// compare it before touching the view.
	epoch   uint64
	durable []store.Message
	overlay []ViewMessage
}

func NewAssembler(sessions *Registry, ledger *Ledger, gen ai.Generator, opts Options) *Assembler {
	return &Assembler{
		sessions: sessions,
		ledger:   ledger,
		gen:      gen,
		models:   opts.Models,
		notify:   opts.Notifier,
		tokens:   opts.Tokens,
		log:      logging.OrNop(opts.Logger),
		now:      time.Now,
		state:    StateIdle,
	}
}

func (a *Assembler) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewLocked()
}

func (a *Assembler) viewLocked() View {
	msgs := make([]ViewMessage, 0, len(a.durable)+len(a.overlay))
	for _, m := range a.durable {
		msgs = append(msgs, ViewMessage{Message: m})
	}
	msgs = append(msgs, a.overlay...)
	return View{
		State:     a.state,
		Selection: a.sel,
		Draft:     a.draft,
		Messages:  msgs,
	}
}

func (a *Assembler) Selection() Selection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sel
}

// Select switches the active session, model, or scope and reloads the view.
// Switching session or model abandons any pending placeholder; toggling the
// scope alone keeps it.
func (a *Assembler) Select(ctx context.Context, sel Selection) (View, error) {
	sel.SessionID = strings.TrimSpace(sel.SessionID)
	sel.ModelID = strings.TrimSpace(sel.ModelID)
	if sel.SessionID != "" {
		if _, err := a.sessions.Get(ctx, sel.SessionID); err != nil {
			return View{}, err
		}
	}
	msgs, err := a.load(ctx, sel)
	if err != nil {
		return View{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if sel.SessionID != a.sel.SessionID || sel.ModelID != a.sel.ModelID {
		a.epoch++
		a.overlay = nil
		a.state = a.restingState()
	}
	a.sel = sel
	a.durable = msgs
	return a.viewLocked(), nil
}

func (a *Assembler) SetShared(ctx context.Context, shared bool) (View, error) {
	sel := a.Selection()
	sel.Shared = shared
	return a.Select(ctx, sel)
}

// SetDraft records the composer text. It never leaves awaiting_response.
func (a *Assembler) SetDraft(text string) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.draft = text
	if a.state != StateAwaiting {
		a.state = a.restingState()
	}
	return a.state
}

func (a *Assembler) restingState() State {
	if strings.TrimSpace(a.draft) != "" {
		return StateComposing
	}
	return StateIdle
}

// NewChat creates a session and makes it active, keeping the model and scope.
func (a *Assembler) NewChat(ctx context.Context, name string) (*store.Session, error) {
	sess, err := a.sessions.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	a.publish(ctx, Event{Type: EventSessionCreated, SessionID: sess.ID})

	sel := a.Selection()
	sel.SessionID = sess.ID
	if _, err := a.Select(ctx, sel); err != nil {
		return sess, err
	}
	return sess, nil
}

// DeleteSession removes a session and its messages. Deleting the active
// session clears the selection.
func (a *Assembler) DeleteSession(ctx context.Context, id string) bool {
	id = strings.TrimSpace(id)
	if !a.sessions.Delete(ctx, id) {
		return false
	}
	a.publish(ctx, Event{Type: EventSessionDeleted, SessionID: id})

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sel.SessionID == id {
		a.epoch++
		a.sel.SessionID = ""
		a.durable = nil
		a.overlay = nil
		a.state = a.restingState()
	}
	return true
}

// ClearContext deletes the messages in the active scope.
func (a *Assembler) ClearContext(ctx context.Context) (int64, error) {
	sel := a.Selection()
	if sel.SessionID == "" {
		return 0, ErrNoActiveSession
	}
	if !sel.Shared && sel.ModelID == "" {
		return 0, ErrNoActiveModel
	}
	return a.Clear(ctx, sel.SessionID, sel.ModelID, sel.Shared)
}

// Clear deletes one scope of any session. The active session cannot be
// cleared while a turn is awaiting its reply; when it is cleared the view is
// reloaded.
func (a *Assembler) Clear(ctx context.Context, sessionID, modelID string, shared bool) (int64, error) {
	sessionID = strings.TrimSpace(sessionID)
	modelID = strings.TrimSpace(modelID)
	if sessionID == "" || (!shared && modelID == "") {
		return 0, ErrInvalidInput
	}

	a.mu.Lock()
	if a.state == StateAwaiting && a.sel.SessionID == sessionID {
		a.mu.Unlock()
		return 0, ErrBusy
	}
	a.mu.Unlock()

	n, err := a.ledger.Clear(ctx, sessionID, modelID, shared)
	if err != nil {
		return 0, err
	}
	a.publish(ctx, Event{Type: EventContextCleared, SessionID: sessionID, ModelID: modelID, Shared: shared, Count: n})

	if sel := a.Selection(); sel.SessionID == sessionID {
		a.refresh(ctx, sel)
	}
	return n, nil
}

// DeleteMessage removes a single message from the store and the view.
func (a *Assembler) DeleteMessage(ctx context.Context, id uint64) (bool, error) {
	ok, err := a.ledger.DeleteByID(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	a.publish(ctx, Event{Type: EventMessageDeleted, MessageID: id})

	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.durable[:0:0]
	for _, m := range a.durable {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	a.durable = kept
	return true, nil
}

// Submit sends a new user turn. The user message is persisted before the
// generator is called. On a generation failure the returned result still
// carries the stored user message and the error is a *GenerationError.
func (a *Assembler) Submit(ctx context.Context, text string) (*TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}

	a.mu.Lock()
	if a.state == StateAwaiting {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	sel := a.sel
	if sel.ModelID == "" {
		a.mu.Unlock()
		return nil, ErrNoActiveModel
	}
	a.state = StateAwaiting
	epoch := a.epoch
	a.mu.Unlock()

	model, err := a.resolve(ctx, sel.ModelID)
	if err != nil {
		a.release(epoch)
		return nil, err
	}

	if sel.SessionID == "" {
		sess, err := a.sessions.Create(ctx, DefaultSessionName)
		if err != nil {
			a.release(epoch)
			return nil, err
		}
		sel.SessionID = sess.ID
		a.publish(ctx, Event{Type: EventSessionCreated, SessionID: sess.ID})

		a.mu.Lock()
		if a.epoch == epoch && a.sel.SessionID == "" {
			a.sel.SessionID = sess.ID
			a.durable = nil
		}
		a.mu.Unlock()
	}

	user, err := a.ledger.append(ctx, AppendInput{
		SessionID:  sel.SessionID,
		Role:       store.RoleUser,
		Content:    text,
		ModelID:    model.ID,
		ModelName:  model.Label(),
		ProviderID: model.Provider,
	})
	if err != nil {
		a.failUnsent(epoch, sel, text, err)
		return nil, err
	}

	a.mu.Lock()
	if a.epoch == epoch {
		a.durable = append(a.durable, *user)
		a.overlay = []ViewMessage{a.placeholder(sel, model)}
		a.draft = ""
	}
	a.mu.Unlock()

	return a.generate(ctx, epoch, sel, model, user)
}

// Resubmit rewinds the conversation to a user message in the current view,
// trims everything after it from the store, and generates a fresh reply
// using the anchor's text. No new user message is written.
func (a *Assembler) Resubmit(ctx context.Context, anchorID uint64) (*TurnResult, error) {
	a.mu.Lock()
	if a.state == StateAwaiting {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	sel := a.sel
	if sel.SessionID == "" {
		a.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	if sel.ModelID == "" {
		a.mu.Unlock()
		return nil, ErrNoActiveModel
	}
	idx := -1
	for i, m := range a.durable {
		if m.ID == anchorID && m.Role == store.RoleUser {
			idx = i
			break
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return nil, ErrAnchorNotFound
	}
	anchor := a.durable[idx]
	a.durable = append([]store.Message(nil), a.durable[:idx+1]...)
	a.overlay = nil
	a.state = StateAwaiting
	epoch := a.epoch
	a.mu.Unlock()

	model, err := a.resolve(ctx, sel.ModelID)
	if err != nil {
		a.finishFailed(epoch, err)
		return nil, err
	}

	a.mu.Lock()
	if a.epoch == epoch {
		a.overlay = []ViewMessage{a.placeholder(sel, model)}
	}
	a.mu.Unlock()

	removed, found, err := a.ledger.trimAfter(ctx, sel.SessionID, anchor.ID, sel.ModelID, sel.Shared)
	if err != nil {
		a.finishFailed(epoch, err)
		return nil, err
	}
	if !found {
		// the anchor left the store behind the view's back
		a.release(epoch)
		a.refresh(ctx, sel)
		return nil, ErrAnchorNotFound
	}
	if removed > 0 {
		a.publish(ctx, Event{Type: EventHistoryTrimmed, SessionID: sel.SessionID, ModelID: sel.ModelID, MessageID: anchor.ID, Shared: sel.Shared, Count: removed})
	}

	return a.generate(ctx, epoch, sel, model, &anchor)
}

// generate runs the awaiting_response phase for a user turn that is already
// stored.
func (a *Assembler) generate(ctx context.Context, epoch uint64, sel Selection, model store.Model, user *store.Message) (*TurnResult, error) {
	res := &TurnResult{SessionID: sel.SessionID, User: user}
	log := a.log.With(
		zap.String("session_id", sel.SessionID),
		zap.String("model_id", model.ID),
		zap.Uint64("user_message_id", user.ID),
	)

	scope, err := a.ledger.History(ctx, sel.SessionID, model.ID, sel.Shared)
	if err != nil {
		res.Stale = a.finishFailed(epoch, err)
		return res, err
	}
	req := ai.Request{
		ModelID:    model.ID,
		UserText:   user.Content,
		Context:    buildContext(scope, user),
		TokenLimit: a.tokens.MaxTokens(),
	}

	reply, err := a.gen.Generate(ctx, req)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		gerr := &GenerationError{ModelID: model.ID, Err: err}
		log.Warn("generation failed", zap.Error(err))
		res.Stale = a.finishFailed(epoch, gerr)
		return res, gerr
	}

	assistant, err := a.ledger.append(ctx, AppendInput{
		SessionID:  sel.SessionID,
		Role:       store.RoleAssistant,
		Content:    reply,
		ModelID:    model.ID,
		ModelName:  model.Label(),
		ProviderID: model.Provider,
	})
	if err != nil {
		res.Stale = a.finishFailed(epoch, err)
		return res, err
	}
	res.Assistant = assistant
	a.publish(ctx, Event{Type: EventTurnSettled, SessionID: sel.SessionID, ModelID: model.ID, MessageID: assistant.ID})

	res.Stale = !a.finishSettled(ctx, epoch, sel)
	if res.Stale {
		log.Debug("turn settled after selection changed")
	}
	return res, nil
}

// buildContext returns the scope as provider messages with the user turn
// moved to the end.
func buildContext(scope []store.Message, user *store.Message) []ai.Message {
	out := make([]ai.Message, 0, len(scope)+1)
	for _, m := range scope {
		if m.ID == user.ID {
			continue
		}
		out = append(out, ai.Message{Role: string(m.Role), Content: m.Content})
	}
	return append(out, ai.Message{Role: string(user.Role), Content: user.Content})
}

func (a *Assembler) resolve(ctx context.Context, modelID string) (store.Model, error) {
	if a.models == nil {
		return store.Model{ID: modelID, Name: modelID, Enabled: true}, nil
	}
	return a.models.Lookup(ctx, modelID)
}

func (a *Assembler) placeholder(sel Selection, model store.Model) ViewMessage {
	return ViewMessage{
		Message: store.Message{
			SessionID:  sel.SessionID,
			ModelID:    model.ID,
			Role:       store.RoleAssistant,
			ModelName:  model.Label(),
			ProviderID: model.Provider,
		},
		Pending: true,
	}
}

// finishSettled swaps the placeholder for the stored reply by reloading the
// scope. It reports false when the turn went stale.
func (a *Assembler) finishSettled(ctx context.Context, epoch uint64, sel Selection) bool {
	msgs, err := a.load(ctx, a.Selection())

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.epoch != epoch {
		return false
	}
	if err != nil {
		a.log.Error("reload after settle failed", zap.String("session_id", sel.SessionID), zap.Error(err))
	} else {
		a.durable = msgs
	}
	a.overlay = nil
	a.state = StateSettled
	return true
}

// finishFailed marks the placeholder with the error. It reports true when the
// turn went stale.
func (a *Assembler) finishFailed(epoch uint64, cause error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.epoch != epoch {
		return true
	}
	if len(a.overlay) == 0 {
		a.overlay = []ViewMessage{{Message: store.Message{SessionID: a.sel.SessionID, ModelID: a.sel.ModelID, Role: store.RoleAssistant}}}
	}
	last := &a.overlay[len(a.overlay)-1]
	last.Pending = false
	last.Error = cause.Error()
	a.state = StateFailed
	return false
}

// failUnsent shows a user turn that could not be stored, flagged as failed.
func (a *Assembler) failUnsent(epoch uint64, sel Selection, text string, cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.epoch != epoch {
		return
	}
	a.overlay = []ViewMessage{{
		Message: store.Message{SessionID: sel.SessionID, ModelID: sel.ModelID, Role: store.RoleUser, Content: text},
		Error:   cause.Error(),
	}}
	a.state = StateFailed
}

// release returns to a resting state when a turn is rejected before anything
// was written.
func (a *Assembler) release(epoch uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.epoch == epoch {
		a.state = a.restingState()
	}
}

func (a *Assembler) load(ctx context.Context, sel Selection) ([]store.Message, error) {
	if sel.SessionID == "" || (!sel.Shared && sel.ModelID == "") {
		return []store.Message{}, nil
	}
	return a.ledger.History(ctx, sel.SessionID, sel.ModelID, sel.Shared)
}

// refresh reloads the durable view if the selection is unchanged.
func (a *Assembler) refresh(ctx context.Context, sel Selection) {
	msgs, err := a.load(ctx, sel)
	if err != nil {
		a.log.Error("reload view failed", zap.String("session_id", sel.SessionID), zap.Error(err))
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sel == sel {
		a.durable = msgs
		a.overlay = nil
	}
}

func (a *Assembler) publish(ctx context.Context, ev Event) {
	if a.notify == nil {
		return
	}
	ev.At = a.now().UnixMilli()
	if err := a.notify.Publish(context.WithoutCancel(ctx), ev); err != nil {
		a.log.Warn("publish event failed", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
