// Package locator finds the target application's main window. Each polling
// round tries, in order, the owning process id, the title pattern and the
// processes named after the executable, and every strategy ignores modal
// dialogs and untitled windows.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"chatbench/src/cascade"
	"chatbench/src/desktop"
	"chatbench/src/failure"
	"chatbench/src/wait"
)

// ErrNotFound is returned when no strategy produced a window within budget.
var ErrNotFound = errors.New("window not found")

const DefaultInterval = time.Second

// Criteria describes the window to find. Zero fields disable the matching
// strategy.
type Criteria struct {
	PID         int
	Title       *regexp.Regexp
	Executable  string
	DialogClass string
}

type Locator struct {
	windows  desktop.Windows
	procs    desktop.Processes
	interval time.Duration
}

type Option func(*Locator)

// WithInterval sets the pause between polling rounds.
func WithInterval(d time.Duration) Option {
	return func(l *Locator) {
		if d > 0 {
			l.interval = d
		}
	}
}

func New(w desktop.Windows, p desktop.Processes, opts ...Option) *Locator {
	l := &Locator{windows: w, procs: p, interval: DefaultInterval}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locate polls until a strategy finds a window or budget elapses. The error
// wraps ErrNotFound and failure.Discovery.
func (l *Locator) Locate(ctx context.Context, c Criteria, budget time.Duration) (desktop.WindowInfo, error) {
	strategies := l.strategies(c)
	if len(strategies) == 0 {
		return desktop.WindowInfo{}, failure.New(failure.Discovery, "locate", fmt.Errorf("%w: empty criteria", ErrNotFound))
	}

	var last string
	info, err := wait.Value(ctx, l.interval, budget, func(ctx context.Context) (desktop.WindowInfo, bool, error) {
		rep, err := cascade.Run(ctx, strategies)
		if err != nil {
			if ctx.Err() != nil {
				return desktop.WindowInfo{}, false, ctx.Err()
			}
			for _, a := range rep.Attempts {
				if errors.Is(a.Err, desktop.ErrUnsupported) {
					return desktop.WindowInfo{}, false, a.Err
				}
			}
			last = rep.String()
			return desktop.WindowInfo{}, false, nil
		}
		log.Printf("Locator: found %s %q (pid %d) via %s", rep.Value.Handle, rep.Value.Title, rep.Value.PID, rep.Winner)
		return rep.Value, true, nil
	})
	if err != nil {
		if last != "" {
			err = fmt.Errorf("%w after %s (%s): %v", ErrNotFound, budget, last, err)
		} else {
			err = fmt.Errorf("%w after %s: %v", ErrNotFound, budget, err)
		}
		return desktop.WindowInfo{}, failure.New(failure.Discovery, "locate", err)
	}
	return info, nil
}

func (l *Locator) strategies(c Criteria) []cascade.Strategy[desktop.WindowInfo] {
	var s []cascade.Strategy[desktop.WindowInfo]
	if c.PID > 0 {
		s = append(s, cascade.Strategy[desktop.WindowInfo]{Name: "pid", Run: func(context.Context) (desktop.WindowInfo, error) {
			return l.pick(c, func(w desktop.WindowInfo) bool { return w.PID == c.PID })
		}})
	}
	if c.Title != nil {
		s = append(s, cascade.Strategy[desktop.WindowInfo]{Name: "title", Run: func(context.Context) (desktop.WindowInfo, error) {
			return l.pick(c, func(w desktop.WindowInfo) bool { return c.Title.MatchString(w.Title) })
		}})
	}
	if c.Executable != "" && l.procs != nil {
		s = append(s, cascade.Strategy[desktop.WindowInfo]{Name: "process", Run: func(ctx context.Context) (desktop.WindowInfo, error) {
			pids, err := l.procs.FindByName(ctx, c.Executable)
			if err != nil {
				return desktop.WindowInfo{}, err
			}
			if len(pids) == 0 {
				return desktop.WindowInfo{}, fmt.Errorf("no %s process", c.Executable)
			}
			owned := make(map[int]bool, len(pids))
			for _, pid := range pids {
				owned[pid] = true
			}
			return l.pick(c, func(w desktop.WindowInfo) bool { return owned[w.PID] })
		}})
	}
	return s
}

// pick returns the first eligible window accepted by match, preferring one
// whose title also matches c.Title.
func (l *Locator) pick(c Criteria, match func(desktop.WindowInfo) bool) (desktop.WindowInfo, error) {
	all, err := l.windows.TopLevel()
	if err != nil {
		return desktop.WindowInfo{}, err
	}
	var fallback *desktop.WindowInfo
	for i := range all {
		w := all[i]
		if !Eligible(w, c.DialogClass) || !match(w) {
			continue
		}
		if c.Title == nil || c.Title.MatchString(w.Title) {
			return w, nil
		}
		if fallback == nil {
			fallback = &all[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return desktop.WindowInfo{}, errors.New("no matching window")
}

// Eligible reports whether w can be the main window: visible, titled and
// not a modal dialog.
func Eligible(w desktop.WindowInfo, dialogClass string) bool {
	if !w.Visible || w.Title == "" {
		return false
	}
	if dialogClass != "" && w.Class == dialogClass {
		return false
	}
	if w.Owner != 0 && w.ModalFrame {
		return false
	}
	return true
}
