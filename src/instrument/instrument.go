// Package instrument drives the target's embedded DevTools console: it
// installs a timing script before a batch and fetches what the script
// collected afterwards.
package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"time"

	"chatbench/src/clipboard"
	"chatbench/src/desktop"
	"chatbench/src/keys"
	"chatbench/src/profile"
	"chatbench/src/recorder"
	"chatbench/src/wait"
)

var (
	ErrNoTimings = errors.New("no timing array in console output")

	arrayRe = regexp.MustCompile(`(?s)\[.*\]`)
)

// Typist is the part of the text injector the console flow needs.
type Typist interface {
	Inject(ctx context.Context, h desktop.Handle, text string) error
	Chord(h desktop.Handle, seq string) error
}

type Instrumenter struct {
	windows desktop.Windows
	typist  Typist
	board   clipboard.Board
	keymap  keys.Keymap
	cfg     profile.Instrument
	target  profile.Target
	devRe   *regexp.Regexp

	step    time.Duration
	console time.Duration
}

type Option func(*Instrumenter)

// WithDelays sets the pause after each console step and the time allowed for
// DevTools to open.
func WithDelays(step, console time.Duration) Option {
	return func(in *Instrumenter) {
		in.step = step
		in.console = console
	}
}

func New(w desktop.Windows, t Typist, board clipboard.Board, km keys.Keymap, p *profile.Profile, opts ...Option) *Instrumenter {
	in := &Instrumenter{
		windows: w,
		typist:  t,
		board:   board,
		keymap:  km,
		cfg:     p.Instrument,
		target:  p.Target,
		devRe:   p.DevToolsRegexp(),
		step:    time.Second,
		console: time.Duration(p.Instrument.ConsoleDelaySec) * time.Second,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Install runs script in the DevTools console of the focused target window
// and closes DevTools again.
func (in *Instrumenter) Install(ctx context.Context, script string) error {
	if err := in.openConsole(ctx); err != nil {
		return fmt.Errorf("open console: %w", err)
	}
	if err := in.run(ctx, script); err != nil {
		return fmt.Errorf("run script: %w", err)
	}
	in.closeDevTools(ctx)
	log.Printf("Instrument: timing script installed (%d bytes)", len(script))
	return nil
}

// Fetch evaluates the fetch expression, which copies the collected timings
// to the clipboard, and writes them to
// copilot_timings_<model>_<YYYYMMDD_HHMMSS>.json under dir.
func (in *Instrumenter) Fetch(ctx context.Context, dir, model string, at time.Time) (string, error) {
	var raw string
	err := clipboard.Scope(in.board, func() error {
		if err := in.board.Write(""); err != nil {
			return err
		}
		if err := in.openConsole(ctx); err != nil {
			return fmt.Errorf("open console: %w", err)
		}
		if err := in.run(ctx, in.cfg.FetchExpression); err != nil {
			return fmt.Errorf("run fetch: %w", err)
		}
		var err error
		raw, err = in.board.Read()
		return err
	})
	in.closeDevTools(ctx)
	if err != nil {
		return "", err
	}

	timings, err := ParseTimings(raw)
	if err != nil {
		return "", err
	}
	data, err := recorder.MarshalIndent(timings)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("copilot_timings_%s_%s.json", model, at.Format("20060102_150405")))
	if err := recorder.WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("write timings: %w", err)
	}
	log.Printf("Instrument: %d internal timings written to %s", len(timings), path)
	return path, nil
}

// ParseTimings extracts the JSON array spanning the first '[' to the last
// ']' of text and renames "time" or "ts" keys to "timestamp".
func ParseTimings(text string) ([]map[string]interface{}, error) {
	span := arrayRe.FindString(text)
	if span == "" {
		return nil, ErrNoTimings
	}
	var entries []map[string]interface{}
	if err := json.Unmarshal([]byte(span), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTimings, err)
	}
	for _, e := range entries {
		if _, ok := e["timestamp"]; ok {
			continue
		}
		for _, alias := range []string{"time", "ts"} {
			if v, ok := e[alias]; ok {
				e["timestamp"] = v
				delete(e, alias)
				break
			}
		}
	}
	return entries, nil
}

func (in *Instrumenter) openConsole(ctx context.Context) error {
	if err := in.typist.Chord(0, in.keymap.CommandPalette); err != nil {
		return err
	}
	if err := wait.Sleep(ctx, in.step); err != nil {
		return err
	}
	if err := in.run(ctx, in.cfg.ToggleCommand); err != nil {
		return err
	}
	if err := wait.Sleep(ctx, in.console); err != nil {
		return err
	}
	if in.cfg.ConsoleFocus == "" {
		return nil
	}
	return in.typist.Chord(0, in.cfg.ConsoleFocus)
}

func (in *Instrumenter) run(ctx context.Context, text string) error {
	if err := in.typist.Inject(ctx, 0, text); err != nil {
		return err
	}
	if err := in.typist.Chord(0, in.keymap.Commit); err != nil {
		return err
	}
	return wait.Sleep(ctx, in.step)
}

// closeDevTools brings the DevTools window forward, when one can be found,
// and closes it.
func (in *Instrumenter) closeDevTools(ctx context.Context) {
	all, err := in.windows.TopLevel()
	if err != nil {
		return
	}
	for _, w := range all {
		if !w.Visible || !in.devRe.MatchString(w.Title) {
			continue
		}
		if in.target.DevToolsClass != "" && w.Class != in.target.DevToolsClass {
			continue
		}
		_ = in.windows.SetForeground(w.Handle)
		if err := in.typist.Chord(w.Handle, in.keymap.CloseWindow); err != nil {
			log.Printf("Instrument: closing DevTools: %v", err)
		}
		wait.Pause(ctx, in.step)
		return
	}
	log.Printf("Instrument: DevTools window not found, leaving it open")
}
