package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/suPer8Hu/agentk/internal/catalog"
	"github.com/suPer8Hu/agentk/internal/chat"
	"github.com/suPer8Hu/agentk/internal/store"
)

type repl struct {
	chat     *chat.Assembler
	sessions *chat.Registry
	catalog  *catalog.Catalog
	out      io.Writer
	renderer *glamour.TermRenderer

	you, bot, dim, warn func(a ...interface{}) string
}

func newREPL(asm *chat.Assembler, sessions *chat.Registry, cat *catalog.Catalog, out io.Writer) *repl {
	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = w
	}
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	return &repl{
		chat:     asm,
		sessions: sessions,
		catalog:  cat,
		out:      out,
		renderer: renderer,
		you:      color.New(color.FgGreen, color.Bold).SprintFunc(),
		bot:      color.New(color.FgCyan, color.Bold).SprintFunc(),
		dim:      color.New(color.FgHiBlack).SprintFunc(),
		warn:     color.New(color.FgRed).SprintFunc(),
	}
}

func (r *repl) welcome() {
	sel := r.chat.Selection()
	fmt.Fprintln(r.out, r.bot("agentk"))
	fmt.Fprintf(r.out, "model: %s  session: %s  shared: %v\n", orNone(sel.ModelID), orNone(sel.SessionID), sel.Shared)
	fmt.Fprintln(r.out, r.dim("/new /sessions /use /rename /delete /model /models /shared /clear /resubmit /history /quit"))
	fmt.Fprintln(r.out)
}

func (r *repl) run(ctx context.Context, in *bufio.Scanner) {
	for {
		fmt.Fprint(r.out, r.you("You: "))
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		cmd, arg, isCmd := parseCommand(line)
		if !isCmd {
			r.submit(ctx, line)
			continue
		}
		if cmd == "quit" || cmd == "exit" {
			return
		}
		if err := r.dispatch(ctx, cmd, arg); err != nil {
			fmt.Fprintln(r.out, r.warn("error: "+err.Error()))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// parseCommand splits "/name rest" into its parts.
func parseCommand(line string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	fields := strings.SplitN(strings.TrimPrefix(line, "/"), " ", 2)
	cmd = strings.ToLower(fields[0])
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}
	return cmd, arg, cmd != ""
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

var errUnknownCommand = errors.New("unknown command")

func (r *repl) dispatch(ctx context.Context, cmd, arg string) error {
	switch cmd {
	case "new":
		sess, err := r.chat.NewChat(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "started %s (%s)\n", sess.Name, sess.ID)
	case "sessions":
		list, err := r.sessions.List(ctx)
		if err != nil {
			return err
		}
		active := r.chat.Selection().SessionID
		for _, s := range list {
			mark := " "
			if s.ID == active {
				mark = "*"
			}
			fmt.Fprintf(r.out, "%s %s  %s\n", mark, s.ID, s.Name)
		}
	case "use":
		sel := r.chat.Selection()
		sel.SessionID = arg
		v, err := r.chat.Select(ctx, sel)
		if err != nil {
			return err
		}
		r.printHistory(v.Messages)
	case "rename":
		id := r.chat.Selection().SessionID
		if id == "" {
			return chat.ErrNoActiveSession
		}
		return r.sessions.Rename(ctx, id, arg)
	case "delete":
		id := arg
		if id == "" {
			id = r.chat.Selection().SessionID
		}
		if id == "" {
			return chat.ErrNoActiveSession
		}
		if !r.chat.DeleteSession(ctx, id) {
			return errors.New("delete failed")
		}
		fmt.Fprintln(r.out, "deleted", id)
	case "model":
		if _, err := r.catalog.Lookup(ctx, arg); err != nil {
			return err
		}
		sel := r.chat.Selection()
		sel.ModelID = arg
		v, err := r.chat.Select(ctx, sel)
		if err != nil {
			return err
		}
		r.printHistory(v.Messages)
	case "models":
		models, err := r.catalog.Enabled(ctx)
		if err != nil {
			return err
		}
		active := r.chat.Selection().ModelID
		for _, m := range models {
			mark := " "
			if m.ID == active {
				mark = "*"
			}
			fmt.Fprintf(r.out, "%s %-40s %s  %s\n", mark, m.ID, m.Label(), r.dim(m.Provider))
		}
	case "shared":
		on, err := parseOnOff(arg)
		if err != nil {
			return err
		}
		_, err = r.chat.SetShared(ctx, on)
		return err
	case "clear":
		n, err := r.chat.ClearContext(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "removed %d messages\n", n)
	case "resubmit":
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("resubmit needs a message id: %w", err)
		}
		res, err := r.chat.Resubmit(ctx, id)
		r.printTurn(res, err)
	case "history":
		r.printHistory(r.chat.View().Messages)
	default:
		return fmt.Errorf("%w: /%s", errUnknownCommand, cmd)
	}
	return nil
}

func (r *repl) submit(ctx context.Context, text string) {
	r.chat.SetDraft(text)
	res, err := r.chat.Submit(ctx, text)
	r.printTurn(res, err)
}

func (r *repl) printTurn(res *chat.TurnResult, err error) {
	var gerr *chat.GenerationError
	switch {
	case errors.As(err, &gerr):
		fmt.Fprintln(r.out, r.warn("assistant failed: "+gerr.Err.Error()))
		if res != nil && res.User != nil {
			fmt.Fprintln(r.out, r.dim(fmt.Sprintf("retry with /resubmit %d", res.User.ID)))
		}
		return
	case err != nil:
		fmt.Fprintln(r.out, r.warn("error: "+err.Error()))
		return
	}
	if res.Assistant != nil {
		fmt.Fprint(r.out, r.bot(res.Assistant.ModelName+": "))
		fmt.Fprintln(r.out, r.render(res.Assistant.Content))
	}
}

func (r *repl) printHistory(msgs []chat.ViewMessage) {
	for _, m := range msgs {
		switch {
		case m.Pending:
			fmt.Fprintln(r.out, r.dim("… waiting for "+m.ModelName))
		case m.Error != "":
			fmt.Fprintln(r.out, r.warn("✗ "+m.Error))
		case m.Role == store.RoleUser:
			fmt.Fprintf(r.out, "%s %s\n", r.you(fmt.Sprintf("[%d] You:", m.ID)), m.Content)
		default:
			fmt.Fprint(r.out, r.bot(fmt.Sprintf("[%d] %s: ", m.ID, m.ModelName)))
			fmt.Fprintln(r.out, r.render(m.Content))
		}
	}
}

func (r *repl) render(md string) string {
	if r.renderer == nil {
		return md
	}
	out, err := r.renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
