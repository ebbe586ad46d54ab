// Package capture copies the generated response out of the target and
// rejects text that came from a modal dialog instead.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"chatbench/src/clipboard"
	"chatbench/src/desktop"
	"chatbench/src/dialog"
	"chatbench/src/failure"
	"chatbench/src/keys"
	"chatbench/src/logutil"
	"chatbench/src/wait"
)

// ErrInvalid is returned when no attempt produced a normal capture.
var ErrInvalid = errors.New("no valid capture")

type Class int

const (
	Empty Class = iota
	Dialog
	Normal
)

func (c Class) String() string {
	switch c {
	case Empty:
		return "empty"
	case Dialog:
		return "dialog"
	case Normal:
		return "normal"
	default:
		return "unknown"
	}
}

// Result is one capture outcome. Only the Text of a Normal result is
// authoritative.
type Result struct {
	Text     string
	Class    Class
	Method   string
	Attempts int
	// Dismissals records every dialog dismissal run between attempts.
	Dismissals []dialog.Result
}

// Dismisser absorbs a dialog that got in the way of a capture.
type Dismisser interface {
	Dismiss(ctx context.Context) dialog.Result
}

const DefaultSettle = 500 * time.Millisecond

type Capturer struct {
	windows   desktop.Windows
	input     desktop.Input
	board     clipboard.Board
	keymap    keys.Keymap
	markers   []string
	dismisser Dismisser
	settle    time.Duration
}

type Option func(*Capturer)

func WithDismisser(d Dismisser) Option { return func(c *Capturer) { c.dismisser = d } }

// WithSettle sets the pause between the copy chord and reading the clipboard.
func WithSettle(d time.Duration) Option { return func(c *Capturer) { c.settle = d } }

func New(w desktop.Windows, input desktop.Input, board clipboard.Board, km keys.Keymap, markers []string, opts ...Option) *Capturer {
	c := &Capturer{
		windows: w,
		input:   input,
		board:   board,
		keymap:  km,
		markers: markers,
		settle:  DefaultSettle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify labels copied text.
func (c *Capturer) Classify(text string) Class {
	if strings.TrimSpace(text) == "" {
		return Empty
	}
	for _, m := range c.markers {
		if strings.Contains(text, m) {
			return Dialog
		}
	}
	return Normal
}

type method struct {
	name     string
	selectFn func(ctx context.Context, h desktop.Handle) error
}

func (c *Capturer) methods() []method {
	return []method{
		{"select-all", func(context.Context, desktop.Handle) error {
			return keys.Send(c.input, c.keymap.SelectAll)
		}},
		{"range-select", func(context.Context, desktop.Handle) error {
			if err := keys.Send(c.input, c.keymap.SelectStart); err != nil {
				return err
			}
			return keys.Send(c.input, c.keymap.SelectToEnd)
		}},
		{"click-select-all", func(_ context.Context, h desktop.Handle) error {
			if h != 0 {
				if info, err := c.windows.Info(h); err == nil && !info.Rect.Empty() {
					x, y := info.Rect.Center()
					if err := c.input.Click(x, y); err != nil {
						return err
					}
				}
			}
			return keys.Send(c.input, c.keymap.SelectAll)
		}},
	}
}

// Capture clears the clipboard and tries each selection method followed by
// a copy until the clipboard holds a normal response. A dialog capture hands
// control to the dismisser before the next method. The user's clipboard is
// restored afterwards. When every method fails, the last result is returned
// with an error wrapping ErrInvalid and failure.CaptureInvalid.
func (c *Capturer) Capture(ctx context.Context, h desktop.Handle) (Result, error) {
	if h != 0 && !c.windows.IsAlive(h) {
		return Result{}, failure.New(failure.Discovery, "capture", desktop.ErrStale)
	}

	var res Result
	scopeErr := clipboard.Scope(c.board, func() error {
		for i, m := range c.methods() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if i > 0 && res.Class == Dialog && c.dismisser != nil {
				dr := c.dismisser.Dismiss(ctx)
				res.Dismissals = append(res.Dismissals, dr)
				log.Printf("Capture: dialog in the way, watcher reports %s", dr.State)
			}

			next, err := c.attempt(ctx, h, m)
			next.Attempts = i + 1
			next.Dismissals = res.Dismissals
			res = next
			if err != nil {
				log.Printf("Capture: %s failed: %v", m.name, err)
				continue
			}
			if res.Class == Normal {
				return nil
			}
			log.Printf("Capture: %s gave %s text %q", m.name, res.Class, logutil.Sanitize(res.Text, 80))
		}
		return nil
	})
	if scopeErr != nil && errors.Is(scopeErr, clipboard.ErrRestore) && ctx.Err() == nil && res.Class == Normal {
		log.Printf("Capture: response copied but %v", scopeErr)
		scopeErr = nil
	}
	if scopeErr != nil {
		return res, failure.New(failure.CaptureInvalid, "capture", scopeErr)
	}
	if res.Class != Normal {
		return res, failure.New(failure.CaptureInvalid, "capture",
			fmt.Errorf("%w: %s after %d attempts", ErrInvalid, res.Class, res.Attempts))
	}
	return res, nil
}

func (c *Capturer) attempt(ctx context.Context, h desktop.Handle, m method) (Result, error) {
	res := Result{Method: m.name, Class: Empty}
	if err := c.board.Write(""); err != nil {
		return res, fmt.Errorf("clear clipboard: %w", err)
	}
	if err := m.selectFn(ctx, h); err != nil {
		return res, err
	}
	if err := keys.Send(c.input, c.keymap.Copy); err != nil {
		return res, err
	}
	if err := wait.Sleep(ctx, c.settle); err != nil {
		return res, err
	}
	text, err := c.board.Read()
	if err != nil {
		return res, err
	}
	res.Text = text
	res.Class = c.Classify(text)
	return res, nil
}
