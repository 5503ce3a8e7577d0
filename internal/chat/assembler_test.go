package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/suPer8Hu/agentk/internal/ai"
	"github.com/suPer8Hu/agentk/internal/store"
)

type fixture struct {
	st     *store.Store
	reg    *Registry
	ledger *Ledger
	gen    *recordingGenerator
	events *recordingNotifier
	asm    *Assembler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := openTestStore(t)
	f := &fixture{
		st:     st,
		reg:    NewRegistry(st, nil),
		ledger: NewLedger(st, nil),
		gen:    &recordingGenerator{reply: "Try Kyoto."},
		events: &recordingNotifier{},
	}
	f.asm = NewAssembler(f.reg, f.ledger, f.gen, Options{
		Notifier: f.events,
		Tokens:   ai.TokenPolicy{Mode: ai.TokenLimitCustom, Limit: 128},
	})
	return f
}

func TestAssembler_SubmitPersistsTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.asm.Select(ctx, Selection{ModelID: "gpt-test"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := f.asm.SetDraft("Where should I go in Japan?"); got != StateComposing {
		t.Fatalf("expected composing, got %s", got)
	}

	res, err := f.asm.Submit(ctx, "Where should I go in Japan?")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.User == nil || res.Assistant == nil || res.Stale {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.User.ID >= res.Assistant.ID {
		t.Fatalf("user must be written before assistant")
	}

	v := f.asm.View()
	if v.State != StateSettled || v.Selection.SessionID != res.SessionID || v.Draft != "" {
		t.Fatalf("unexpected view: %+v", v)
	}
	if len(v.Messages) != 2 || v.Messages[1].ID != res.Assistant.ID || v.Messages[1].Pending {
		t.Fatalf("placeholder not replaced: %+v", v.Messages)
	}

	sess, err := f.reg.Get(ctx, res.SessionID)
	if err != nil || sess.Name != DefaultSessionName {
		t.Fatalf("expected auto-created Untitled session: %+v %v", sess, err)
	}

	reqs := f.gen.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 generate call, got %d", len(reqs))
	}
	if reqs[0].TokenLimit != 128 || reqs[0].UserText != "Where should I go in Japan?" {
		t.Fatalf("unexpected request: %+v", reqs[0])
	}
	if len(reqs[0].Context) != 1 || reqs[0].Context[0].Role != "user" {
		t.Fatalf("context must end with the user turn: %+v", reqs[0].Context)
	}

	want := []EventType{EventSessionCreated, EventTurnSettled}
	got := f.events.types()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("events = %v", got)
	}
}

func TestAssembler_ContextFollowsScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, _ := f.reg.Create(ctx, "s")
	appendAt(t, f.ledger, sess.ID, "claude-test", 1)

	if _, err := f.asm.Select(ctx, Selection{SessionID: sess.ID, ModelID: "gpt-test"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := f.asm.Submit(ctx, "one"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if n := len(f.gen.requests()[0].Context); n != 1 {
		t.Fatalf("per-model context leaked other models: %d", n)
	}

	v, err := f.asm.SetShared(ctx, true)
	if err != nil {
		t.Fatalf("set shared: %v", err)
	}
	if len(v.Messages) != 3 {
		t.Fatalf("shared view should show all 3 messages, got %d", len(v.Messages))
	}
	if _, err := f.asm.Submit(ctx, "two"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	last := f.gen.requests()[1].Context
	if len(last) != 4 || last[3].Content != "two" {
		t.Fatalf("shared context wrong: %+v", last)
	}
}

func TestAssembler_ScenarioC_Resubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, _ := f.reg.Create(ctx, "Trip planning")
	userID, _ := f.ledger.Append(ctx, AppendInput{SessionID: sess.ID, Role: store.RoleUser, Content: "Where should I go in Japan?", ModelID: "gpt-test", Ts: 1000})
	if _, err := f.ledger.Append(ctx, AppendInput{SessionID: sess.ID, Role: store.RoleAssistant, Content: "Try Kyoto.", ModelID: "gpt-test", Ts: 1001}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := f.asm.Select(ctx, Selection{SessionID: sess.ID, ModelID: "gpt-test"}); err != nil {
		t.Fatalf("select: %v", err)
	}

	f.gen.reply = "Try Osaka."
	res, err := f.asm.Resubmit(ctx, userID)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if res.User.ID != userID || res.Assistant == nil {
		t.Fatalf("unexpected result: %+v", res)
	}

	reqs := f.gen.requests()
	if len(reqs) != 1 || len(reqs[0].Context) != 1 || reqs[0].Context[0].Content != "Where should I go in Japan?" {
		t.Fatalf("expected context [anchor], got %+v", reqs)
	}

	hist, _ := f.ledger.HistoryForModel(ctx, sess.ID, "gpt-test")
	if !equalStrings(contents(hist), []string{"Where should I go in Japan?", "Try Osaka."}) {
		t.Fatalf("unexpected history: %v", contents(hist))
	}
	if v := f.asm.View(); len(v.Messages) != 2 || v.State != StateSettled {
		t.Fatalf("unexpected view: %+v", v)
	}

	if _, err := f.asm.Resubmit(ctx, res.Assistant.ID); !errors.Is(err, ErrAnchorNotFound) {
		t.Fatalf("assistant anchor should be rejected, got %v", err)
	}
}

func TestAssembler_ResubmitSameMillisecondDropsOldReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fixed := time.UnixMilli(5000)
	f.ledger.now = func() time.Time { return fixed }

	sess, _ := f.reg.Create(ctx, "s")
	if _, err := f.asm.Select(ctx, Selection{SessionID: sess.ID, ModelID: "gpt-test"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	res, err := f.asm.Submit(ctx, "q")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.gen.reply = "second"
	if _, err := f.asm.Resubmit(ctx, res.User.ID); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	hist, _ := f.ledger.HistoryForModel(ctx, sess.ID, "gpt-test")
	if !equalStrings(contents(hist), []string{"q", "second"}) {
		t.Fatalf("unexpected history: %v", contents(hist))
	}
	if v := f.asm.View(); len(v.Messages) != 2 {
		t.Fatalf("view out of step with store: %+v", v.Messages)
	}
	reqs := f.gen.requests()
	if got := reqs[1].Context; len(got) != 1 || got[0].Role != "user" || got[0].Content != "q" {
		t.Fatalf("expected context [q], got %+v", got)
	}
}

func TestAssembler_ResubmitAnchorGoneFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, _ := f.reg.Create(ctx, "s")
	if _, err := f.asm.Select(ctx, Selection{SessionID: sess.ID, ModelID: "gpt-test"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	res, err := f.asm.Submit(ctx, "q")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// cleared without going through the assembler
	if _, err := f.ledger.ClearShared(ctx, sess.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if _, err := f.asm.Resubmit(ctx, res.User.ID); !errors.Is(err, ErrAnchorNotFound) {
		t.Fatalf("expected ErrAnchorNotFound, got %v", err)
	}
	if n, _ := f.st.CountMessages(ctx, sess.ID); n != 0 {
		t.Fatalf("resubmit wrote %d messages without an anchor", n)
	}
	if len(f.gen.requests()) != 1 {
		t.Fatalf("generator called for a missing anchor")
	}
	v := f.asm.View()
	if v.State == StateAwaiting || len(v.Messages) != 0 {
		t.Fatalf("view not reloaded: %+v", v)
	}
	if _, err := f.asm.Submit(ctx, "again"); err != nil {
		t.Fatalf("submit after rejected resubmit: %v", err)
	}
}

func TestAssembler_ClearOtherScopeRefreshesActiveView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, _ := f.reg.Create(ctx, "s")
	other, _ := f.reg.Create(ctx, "other")
	appendAt(t, f.ledger, other.ID, "gpt-test", 1)
	if _, err := f.asm.Select(ctx, Selection{SessionID: sess.ID, ModelID: "gpt-test"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := f.asm.Submit(ctx, "q"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if n, err := f.asm.Clear(ctx, other.ID, "gpt-test", false); err != nil || n != 1 {
		t.Fatalf("clear other: n=%d err=%v", n, err)
	}
	if v := f.asm.View(); len(v.Messages) != 2 {
		t.Fatalf("clearing another session touched the view: %+v", v.Messages)
	}

	if n, err := f.asm.Clear(ctx, sess.ID, "", true); err != nil || n != 2 {
		t.Fatalf("clear active: n=%d err=%v", n, err)
	}
	if v := f.asm.View(); len(v.Messages) != 0 {
		t.Fatalf("active view not reloaded: %+v", v.Messages)
	}
	if _, err := f.asm.Clear(ctx, sess.ID, "", false); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAssembler_LedgerWriteFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, _ := f.reg.Create(ctx, "s")
	if _, err := f.asm.Select(ctx, Selection{SessionID: sess.ID, ModelID: "gpt-test"}); err != nil {
		t.Fatalf("select: %v", err)
	}

	var failRole store.Role
	err := f.st.DB().Callback().Create().Before("gorm:create").Register("test:fail_message_create", func(tx *gorm.DB) {
		if m, ok := tx.Statement.Dest.(*store.Message); ok && m.Role == failRole {
			_ = tx.AddError(errors.New("disk full"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	t.Run("user turn not stored", func(t *testing.T) {
		failRole = store.RoleUser
		res, err := f.asm.Submit(ctx, "hello")
		var gerr *GenerationError
		if err == nil || errors.As(err, &gerr) || res != nil {
			t.Fatalf("expected a store error, got res=%+v err=%v", res, err)
		}
		if len(f.gen.requests()) != 0 {
			t.Fatalf("generator called without a stored user turn")
		}
		if n, _ := f.st.CountMessages(ctx, sess.ID); n != 0 {
			t.Fatalf("expected nothing stored, got %d", n)
		}
		v := f.asm.View()
		if v.State != StateFailed || len(v.Messages) != 1 {
			t.Fatalf("unexpected view: %+v", v)
		}
		if m := v.Messages[0]; m.Role != store.RoleUser || m.Content != "hello" || m.Error == "" || m.ID != 0 {
			t.Fatalf("unsent turn not flagged: %+v", m)
		}
	})

	t.Run("assistant turn not stored", func(t *testing.T) {
		failRole = store.RoleAssistant
		res, err := f.asm.Submit(ctx, "again")
		var gerr *GenerationError
		if err == nil || errors.As(err, &gerr) {
			t.Fatalf("expected a store error, got %v", err)
		}
		if res == nil || res.User == nil || res.User.ID == 0 || res.Assistant != nil {
			t.Fatalf("unexpected result: %+v", res)
		}
		hist, _ := f.ledger.HistoryShared(ctx, sess.ID)
		if len(hist) != 1 || hist[0].ID != res.User.ID {
			t.Fatalf("only the user turn should be stored: %+v", hist)
		}
		v := f.asm.View()
		if v.State != StateFailed || len(v.Messages) != 2 {
			t.Fatalf("unexpected view: %+v", v)
		}
		if m := v.Messages[1]; m.Role != store.RoleAssistant || m.Pending || m.Error == "" || m.ID != 0 {
			t.Fatalf("assistant turn not flagged: %+v", m)
		}
	})
}

func TestAssembler_GenerationFailureKeepsUserTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.err = errors.New("openrouter: status 500")

	sess, _ := f.reg.Create(ctx, "s")
	if _, err := f.asm.Select(ctx, Selection{SessionID: sess.ID, ModelID: "gpt-test"}); err != nil {
		t.Fatalf("select: %v", err)
	}

	res, err := f.asm.Submit(ctx, "hello")
	var gerr *GenerationError
	if !errors.As(err, &gerr) || gerr.ModelID != "gpt-test" {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if res == nil || res.User == nil || res.Assistant != nil {
		t.Fatalf("unexpected result: %+v", res)
	}

	hist, _ := f.ledger.HistoryForModel(ctx, sess.ID, "gpt-test")
	if len(hist) != 1 || hist[0].Role != store.RoleUser {
		t.Fatalf("only the user turn should be stored: %+v", hist)
	}

	v := f.asm.View()
	if v.State != StateFailed || len(v.Messages) != 2 {
		t.Fatalf("unexpected view: %+v", v)
	}
	if ph := v.Messages[1]; ph.Pending || ph.Error == "" || ph.ID != 0 {
		t.Fatalf("placeholder not annotated: %+v", ph)
	}

	f.gen.err = nil
	if _, err := f.asm.Resubmit(ctx, res.User.ID); err != nil {
		t.Fatalf("retry by resubmit: %v", err)
	}
	if hist, _ := f.ledger.HistoryForModel(ctx, sess.ID, "gpt-test"); len(hist) != 2 {
		t.Fatalf("expected user and assistant after retry, got %d", len(hist))
	}
}

func TestAssembler_StaleResponseDoesNotTouchNewSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.started = make(chan struct{}, 1)
	f.gen.gate = make(chan struct{})

	first, _ := f.reg.Create(ctx, "first")
	second, _ := f.reg.Create(ctx, "second")
	if _, err := f.asm.Select(ctx, Selection{SessionID: first.ID, ModelID: "gpt-test"}); err != nil {
		t.Fatalf("select: %v", err)
	}

	type outcome struct {
		res *TurnResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.asm.Submit(ctx, "slow question")
		done <- outcome{res, err}
	}()
	<-f.gen.started

	if _, err := f.asm.Submit(ctx, "again"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if v := f.asm.View(); v.State != StateAwaiting || !v.Messages[len(v.Messages)-1].Pending {
		t.Fatalf("expected pending placeholder: %+v", v)
	}

	if _, err := f.asm.Select(ctx, Selection{SessionID: second.ID, ModelID: "gpt-test"}); err != nil {
		t.Fatalf("select second: %v", err)
	}
	close(f.gen.gate)
	out := <-done
	if out.err != nil {
		t.Fatalf("submit: %v", out.err)
	}
	if !out.res.Stale || out.res.SessionID != first.ID {
		t.Fatalf("expected stale result for first session: %+v", out.res)
	}

	v := f.asm.View()
	if v.Selection.SessionID != second.ID || len(v.Messages) != 0 || v.State == StateSettled {
		t.Fatalf("stale reply leaked into new view: %+v", v)
	}
	if hist, _ := f.ledger.HistoryForModel(ctx, first.ID, "gpt-test"); len(hist) != 2 {
		t.Fatalf("turn should be stored in its own session, got %d", len(hist))
	}
}

func TestAssembler_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.asm.Submit(ctx, "   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if _, err := f.asm.Submit(ctx, "hi"); !errors.Is(err, ErrNoActiveModel) {
		t.Fatalf("expected ErrNoActiveModel, got %v", err)
	}
	if _, err := f.asm.Resubmit(ctx, 1); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	if _, err := f.asm.Select(ctx, Selection{SessionID: "missing"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if v := f.asm.View(); v.State != StateIdle {
		t.Fatalf("rejected calls changed state: %s", v.State)
	}
	if list, _ := f.reg.List(ctx); len(list) != 0 {
		t.Fatalf("rejected submit created a session")
	}
}

func TestAssembler_ClearDeleteAndNewChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.asm.NewChat(ctx, "Trip planning")
	if err != nil {
		t.Fatalf("new chat: %v", err)
	}
	if _, err := f.asm.Select(ctx, Selection{SessionID: sess.ID, ModelID: "gpt-test"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	res, err := f.asm.Submit(ctx, "hello")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ok, err := f.asm.DeleteMessage(ctx, res.Assistant.ID)
	if err != nil || !ok {
		t.Fatalf("delete message: %v", err)
	}
	if v := f.asm.View(); len(v.Messages) != 1 {
		t.Fatalf("deleted message still visible: %+v", v.Messages)
	}

	n, err := f.asm.ClearContext(ctx)
	if err != nil || n != 1 {
		t.Fatalf("clear: n=%d err=%v", n, err)
	}
	if v := f.asm.View(); len(v.Messages) != 0 {
		t.Fatalf("view not cleared")
	}

	if !f.asm.DeleteSession(ctx, sess.ID) {
		t.Fatalf("delete session failed")
	}
	if v := f.asm.View(); v.Selection.SessionID != "" || v.Selection.ModelID != "gpt-test" {
		t.Fatalf("selection not reset: %+v", v.Selection)
	}

	got := f.events.types()
	want := []EventType{EventSessionCreated, EventTurnSettled, EventMessageDeleted, EventContextCleared, EventSessionDeleted}
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v", got)
		}
	}
}
