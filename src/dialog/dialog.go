// Package dialog detects the target's modal "save changes?" dialog and
// dismisses it without saving.
//
// A Watcher moves through Idle, Searching and then either Found, Dismissing
// and Closed, or GaveUp. Dismissal runs tagged strategies in a fixed order and
// stops at the first one whose effect is confirmed by the dialog going away.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"chatbench/src/cascade"
	"chatbench/src/desktop"
	"chatbench/src/keys"
	"chatbench/src/profile"
	"chatbench/src/wait"
)

type State int

const (
	Idle State = iota
	Searching
	Found
	Dismissing
	Closed
	GaveUp
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Found:
		return "found"
	case Dismissing:
		return "dismissing"
	case Closed:
		return "closed"
	case GaveUp:
		return "gave-up"
	default:
		return "unknown"
	}
}

// Tag classifies a dismissal strategy.
type Tag string

const (
	Keyboard            Tag = "keyboard"
	FindButtonByPattern Tag = "find-button"
	ClickAt             Tag = "click-at"
)

var errStillOpen = errors.New("dialog still open")

// Descriptor is a matched dialog and its "don't save" control.
type Descriptor struct {
	Window         desktop.WindowInfo
	Button         desktop.Control
	MatchedPattern string
}

type Result struct {
	State      State
	Found      bool
	Descriptor Descriptor
	Strategy   string
	Tag        Tag
	Attempts   []cascade.Attempt
}

// Strategy is one way of dismissing a found dialog.
type Strategy struct {
	Name string
	Tag  Tag
	Run  func(ctx context.Context, d Descriptor) error
}

const (
	DefaultTimeout = 5 * time.Second
	DefaultPoll    = 500 * time.Millisecond
	DefaultSettle  = 500 * time.Millisecond
)

type Watcher struct {
	windows desktop.Windows
	input   desktop.Input
	keymap  keys.Keymap

	class       string
	title       *regexp.Regexp
	buttons     []*regexp.Regexp
	clickPoints []profile.ClickPoint
	screen      desktop.Screen

	timeout time.Duration
	poll    time.Duration
	settle  time.Duration
	main    func() desktop.Handle

	state State
}

type Option func(*Watcher)

func WithTimeout(d time.Duration) Option { return func(w *Watcher) { w.timeout = d } }
func WithPoll(d time.Duration) Option { return func(w *Watcher) { w.poll = d } }

// WithSettle sets how long a strategy's effect is awaited before the next
// strategy runs.
func WithSettle(d time.Duration) Option { return func(w *Watcher) { w.settle = d } }

// WithScreen makes the offset clicks skip points that fall off every display.
func WithScreen(s desktop.Screen) Option { return func(w *Watcher) { w.screen = s } }

// WithMainWindow supplies the window that gets focus back after a dismissal.
func WithMainWindow(fn func() desktop.Handle) Option { return func(w *Watcher) { w.main = fn } }

func New(windows desktop.Windows, input desktop.Input, km keys.Keymap, p *profile.Profile, opts ...Option) *Watcher {
	w := &Watcher{
		windows:     windows,
		input:       input,
		keymap:      km,
		class:       p.Dialog.Class,
		title:       p.DialogTitleRegexp(),
		buttons:     p.ButtonRegexps(),
		clickPoints: p.Dialog.ClickPoints,
		timeout:     DefaultTimeout,
		poll:        DefaultPoll,
		settle:      DefaultSettle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the state reached by the last Dismiss call.
func (w *Watcher) State() State { return w.state }

// Dismiss looks for the dialog for up to the configured timeout and closes it.
// Without a dialog it returns GaveUp with Found unset and sends no input, so
// calling it speculatively is safe.
func (w *Watcher) Dismiss(ctx context.Context) Result {
	w.state = Searching
	d, err := wait.Value(ctx, w.poll, w.timeout, func(context.Context) (Descriptor, bool, error) {
		d, ok := w.find()
		return d, ok, nil
	})
	if err != nil {
		w.state = GaveUp
		return Result{State: GaveUp}
	}

	w.state = Found
	log.Printf("Dialog: found %s %q, button %q matched %q", d.Window.Handle, d.Window.Title, d.Button.Text, d.MatchedPattern)

	w.state = Dismissing
	strategies := w.Strategies()
	tags := make(map[string]Tag, len(strategies))
	steps := make([]cascade.Strategy[Tag], 0, len(strategies))
	for _, s := range strategies {
		s := s
		tags[s.Name] = s.Tag
		steps = append(steps, cascade.Strategy[Tag]{Name: s.Name, Run: func(ctx context.Context) (Tag, error) {
			if err := s.Run(ctx, d); err != nil {
				return "", err
			}
			return s.Tag, nil
		}})
	}
	rep, err := cascade.Run(ctx, steps)
	res := Result{Found: true, Descriptor: d, Attempts: rep.Attempts}
	if err != nil {
		log.Printf("Dialog: could not dismiss %s: %v", d.Window.Handle, err)
		w.state = GaveUp
		res.State = GaveUp
		return res
	}

	w.state = Closed
	res.State = Closed
	res.Strategy = rep.Winner
	res.Tag = tags[rep.Winner]
	log.Printf("Dialog: closed via %s (%s)", res.Strategy, res.Tag)
	w.refocusMain()
	return res
}

// Strategies returns the dismissal cascade in the order it is tried.
func (w *Watcher) Strategies() []Strategy {
	return []Strategy{
		{Name: "accelerator", Tag: Keyboard, Run: func(ctx context.Context, d Descriptor) error {
			return w.keyboard(ctx, d, w.keymap.DialogAccelerator)
		}},
		{Name: "navigate", Tag: Keyboard, Run: func(ctx context.Context, d Descriptor) error {
			return w.keyboard(ctx, d, w.keymap.DialogNavigate)
		}},
		{Name: "invoke-button", Tag: FindButtonByPattern, Run: w.invoke},
		{Name: "click-button", Tag: ClickAt, Run: w.clickButton},
		{Name: "click-offsets", Tag: ClickAt, Run: w.clickOffsets},
	}
}

// find returns the first visible dialog with a control matching one of the
// button patterns.
func (w *Watcher) find() (Descriptor, bool) {
	all, err := w.windows.TopLevel()
	if err != nil {
		return Descriptor{}, false
	}
	for _, win := range all {
		if !win.Visible || win.Class != w.class {
			continue
		}
		if w.title != nil && !w.title.MatchString(win.Title) {
			continue
		}
		if btn, pattern, ok := w.matchButton(win.Handle); ok {
			return Descriptor{Window: win, Button: btn, MatchedPattern: pattern}, true
		}
	}
	return Descriptor{}, false
}

func (w *Watcher) matchButton(h desktop.Handle) (desktop.Control, string, bool) {
	controls, err := w.windows.Children(h)
	if err != nil {
		return desktop.Control{}, "", false
	}
	for _, re := range w.buttons {
		for _, c := range controls {
			if re.MatchString(c.Text) {
				return c, re.String(), true
			}
		}
	}
	return desktop.Control{}, "", false
}

func (w *Watcher) keyboard(ctx context.Context, d Descriptor, seq string) error {
	if seq == "" {
		return errors.New("no key sequence configured")
	}
	if !w.windows.IsAlive(d.Window.Handle) {
		return nil
	}
	_ = w.windows.SetForeground(d.Window.Handle)
	if err := keys.Send(w.input, seq); err != nil {
		return err
	}
	return w.confirmClosed(ctx, d)
}

func (w *Watcher) invoke(ctx context.Context, d Descriptor) error {
	btn, _, ok := w.matchButton(d.Window.Handle)
	if !ok {
		if !w.windows.IsAlive(d.Window.Handle) {
			return nil
		}
		return errors.New("button no longer present")
	}
	if err := w.windows.Invoke(btn); err != nil {
		return err
	}
	return w.confirmClosed(ctx, d)
}

func (w *Watcher) clickButton(ctx context.Context, d Descriptor) error {
	if d.Button.Rect.Empty() {
		return errors.New("button has no rectangle")
	}
	x, y := d.Button.Rect.Center()
	if err := w.input.Click(x, y); err != nil {
		return err
	}
	return w.confirmClosed(ctx, d)
}

func (w *Watcher) clickOffsets(ctx context.Context, d Descriptor) error {
	if d.Window.Rect.Empty() {
		return errors.New("dialog has no rectangle")
	}
	var bounds desktop.Rect
	if w.screen != nil {
		if b, err := w.screen.Bounds(); err == nil {
			bounds = b
		}
	}
	for _, p := range w.clickPoints {
		x, y := p.In(d.Window.Rect)
		if !bounds.Empty() && (x < bounds.Left || x >= bounds.Right || y < bounds.Top || y >= bounds.Bottom) {
			log.Printf("Dialog: offset click (%d,%d) is off screen, skipped", x, y)
			continue
		}
		if err := w.input.Click(x, y); err != nil {
			return err
		}
		if err := w.confirmClosed(ctx, d); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w after %d offset clicks", errStillOpen, len(w.clickPoints))
}

// confirmClosed waits up to the settle time for the dialog to disappear.
func (w *Watcher) confirmClosed(ctx context.Context, d Descriptor) error {
	err := wait.Until(ctx, w.settle/5, w.settle, func(context.Context) (bool, error) {
		return w.closed(d.Window.Handle), nil
	})
	if err != nil {
		return errStillOpen
	}
	return nil
}

func (w *Watcher) closed(h desktop.Handle) bool {
	if !w.windows.IsAlive(h) {
		return true
	}
	info, err := w.windows.Info(h)
	return err != nil || !info.Visible
}

// refocusMain clicks the centre of the main window and focuses it, since the
// dialog's owner does not always regain keyboard focus.
func (w *Watcher) refocusMain() {
	if w.main == nil {
		return
	}
	h := w.main()
	if h == 0 || !w.windows.IsAlive(h) {
		return
	}
	info, err := w.windows.Info(h)
	if err != nil {
		return
	}
	if !info.Rect.Empty() {
		x, y := info.Rect.Center()
		_ = w.input.Click(x, y)
	}
	_ = w.windows.SetFocus(h)
}
