// Package inject delivers text into whatever control of the target window has
// keyboard focus.
package inject

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"chatbench/src/clipboard"
	"chatbench/src/desktop"
	"chatbench/src/failure"
	"chatbench/src/keys"
	"chatbench/src/wait"
)

var ErrClipboardMismatch = errors.New("clipboard does not hold the text that was written")

const (
	DefaultSettle    = 500 * time.Millisecond
	DefaultCharDelay = 50 * time.Millisecond
)

type Injector struct {
	windows   desktop.Windows
	input     desktop.Input
	board     clipboard.Board
	keymap    keys.Keymap
	settle    time.Duration
	charDelay time.Duration
}

type Option func(*Injector)

// WithSettle sets the pause after the paste chord, before the clipboard is
// restored.
func WithSettle(d time.Duration) Option { return func(in *Injector) { in.settle = d } }

// WithCharDelay sets the pause between characters in TypeLiteral.
func WithCharDelay(d time.Duration) Option { return func(in *Injector) { in.charDelay = d } }

func New(w desktop.Windows, input desktop.Input, board clipboard.Board, km keys.Keymap, opts ...Option) *Injector {
	in := &Injector{
		windows:   w,
		input:     input,
		board:     board,
		keymap:    km,
		settle:    DefaultSettle,
		charDelay: DefaultCharDelay,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Inject pastes text through the clipboard and falls back to typing it line
// by line. The clipboard holds its original content afterwards on both paths.
// A zero handle sends to whatever window has focus.
//
// Once the paste chord has gone out the text is in the control, so a failure
// after that point never triggers the typed fallback. A clipboard that could
// not be restored is reported as failure.Clipboard.
func (in *Injector) Inject(ctx context.Context, h desktop.Handle, text string) error {
	if err := in.checkAlive(h, "inject"); err != nil {
		return err
	}
	pasted, pasteErr := in.paste(ctx, text)
	if pasteErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if pasted {
		log.Printf("Inject: pasted, but %v", pasteErr)
		return failure.New(failure.Clipboard, "inject", pasteErr)
	}
	log.Printf("Inject: paste failed, typing instead: %v", pasteErr)

	if err := in.typeLines(ctx, text); err != nil {
		return failure.New(failure.Injection, "inject", errors.Join(pasteErr, err))
	}
	return nil
}

// paste reports whether the paste chord was sent, along with any error from
// the paste or the clipboard restore.
func (in *Injector) paste(ctx context.Context, text string) (pasted bool, err error) {
	err = clipboard.Scope(in.board, func() error {
		if err := in.board.Write(text); err != nil {
			return fmt.Errorf("write clipboard: %w", err)
		}
		got, err := in.board.Read()
		if err != nil {
			return fmt.Errorf("verify clipboard: %w", err)
		}
		if got != text {
			return ErrClipboardMismatch
		}
		if err := keys.Send(in.input, in.keymap.Paste); err != nil {
			return err
		}
		pasted = true
		return wait.Sleep(ctx, in.settle)
	})
	return pasted, err
}

// typeLines sends each line as literal keystrokes with the line-break chord
// between lines, so the control ends up with the same content a paste gives.
func (in *Injector) typeLines(ctx context.Context, text string) error {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		line = strings.TrimSuffix(line, "\r")
		if err := keys.Send(in.input, keys.Escape(line)); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if i < len(lines)-1 {
			if err := keys.Send(in.input, in.keymap.LineBreak); err != nil {
				return fmt.Errorf("line break after line %d: %w", i+1, err)
			}
		}
	}
	return nil
}

// TypeLiteral types text one character at a time, pausing between
// characters so autocompletion popups can keep up.
func (in *Injector) TypeLiteral(ctx context.Context, h desktop.Handle, text string) error {
	if err := in.checkAlive(h, "type"); err != nil {
		return err
	}
	for _, r := range text {
		if err := keys.Send(in.input, keys.Escape(string(r))); err != nil {
			return failure.New(failure.Injection, "type", err)
		}
		if err := wait.Sleep(ctx, in.charDelay); err != nil {
			return err
		}
	}
	return nil
}

// Chord sends a keymap sequence such as the commit or clear chord.
func (in *Injector) Chord(h desktop.Handle, seq string) error {
	if err := in.checkAlive(h, "chord"); err != nil {
		return err
	}
	if err := keys.Send(in.input, seq); err != nil {
		return failure.New(failure.Injection, "chord", err)
	}
	return nil
}

func (in *Injector) checkAlive(h desktop.Handle, op string) error {
	if h != 0 && !in.windows.IsAlive(h) {
		return failure.New(failure.Discovery, op, desktop.ErrStale)
	}
	return nil
}
