// Package desktoptest is an in-memory desktop for tests: windows, modal
// dialogs, activation, a clipboard and a chat input that reacts to the
// keymap's chords the way the real target does.
package desktoptest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"time"

	"chatbench/src/clipboard"
	"chatbench/src/desktop"
	"chatbench/src/keys"
)

// DialogClass is the class name given to dialogs created by AddDialog.
const DialogClass = "#32770"

// Dialog describes how a fake modal dialog reacts to input.
type Dialog struct {
	// CloseOnChord lists chords ("alt+n", "enter") that close the dialog.
	CloseOnChord []string
	// CloseOnInvoke closes the dialog when any of its buttons is invoked.
	CloseOnInvoke bool
	// CloseOnButtonClick closes the dialog when a click lands on a button.
	CloseOnButtonClick bool
	// Text is what a copy picks up while the dialog is open.
	Text string
}

type window struct {
	info     desktop.WindowInfo
	controls []desktop.Control
	dialog   *Dialog
	closed   bool
}

type Point struct{ X, Y int }

// Fake implements every desktop service.
type Fake struct {
	mu sync.Mutex

	order      []desktop.Handle
	windows    map[desktop.Handle]*window
	next       desktop.Handle
	foreground desktop.Handle
	focus      desktop.Handle
	selected   bool

	Board  *clipboard.Memory
	Keymap keys.Keymap

	// Document is the text a select-all plus copy returns.
	Document string
	// Input is the chat input buffer built from typed and pasted text.
	Input string
	// Sent holds every Input committed with the commit chord.
	Sent []string

	Taps     []string
	Typed    []string
	Clicks   []Point
	Invoked  []desktop.Handle
	IdleWait []desktop.Handle
	Launches [][]string
	Captures []desktop.Rect

	Procs map[string][]int

	// RefuseForeground makes the next n SetForeground calls fail.
	RefuseForeground int
	// TapErr, when set, can fail individual chords.
	TapErr func(chord string) error
	// OnTap runs after every tap, outside the lock.
	OnTap func(f *Fake, chord string)
	// OnLaunch runs for each Launch call and returns the pid to report.
	OnLaunch func(f *Fake, exe string, args []string) int
}

func New() *Fake {
	return &Fake{
		windows: map[desktop.Handle]*window{},
		next:    0x100,
		Board:   clipboard.NewMemory(""),
		Keymap:  keys.ForOS("windows"),
		Procs:   map[string][]int{},
	}
}

// Desktop exposes f through the desktop bundle.
func (f *Fake) Desktop() *desktop.Desktop {
	return &desktop.Desktop{Windows: f, Input: f, Processes: f, Screen: f, Launcher: f}
}

// AddWindow registers a top-level window and returns its handle.
func (f *Fake) AddWindow(info desktop.WindowInfo) desktop.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(info, nil, nil)
}

// AddDialog opens a visible modal dialog owned by owner with one button per
// label, laid out left to right along the bottom edge.
func (f *Fake) AddDialog(owner desktop.Handle, title string, behavior Dialog, buttons ...string) desktop.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	rect := desktop.Rect{Left: 400, Top: 300, Right: 800, Bottom: 500}
	var controls []desktop.Control
	for i, label := range buttons {
		left := rect.Left + 20 + i*120
		controls = append(controls, desktop.Control{
			Handle:  f.allocLocked(),
			Text:    label,
			Class:   "Button",
			Rect:    desktop.Rect{Left: left, Top: rect.Bottom - 50, Right: left + 100, Bottom: rect.Bottom - 20},
			Enabled: true,
		})
	}
	info := desktop.WindowInfo{
		PID:        f.pidLocked(owner),
		Title:      title,
		Class:      DialogClass,
		Visible:    true,
		Rect:       rect,
		Owner:      owner,
		ModalFrame: true,
	}
	b := behavior
	h := f.addLocked(info, controls, &b)
	f.foreground = h
	return h
}

// Close removes a window as if the user closed it.
func (f *Fake) Close(h desktop.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked(h)
}

// Update mutates a live window's snapshot.
func (f *Fake) Update(h desktop.Handle, fn func(*desktop.WindowInfo)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.windows[h]; ok {
		fn(&w.info)
	}
}

// OpenDialogs counts dialogs that are still open.
func (f *Fake) OpenDialogs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.windows {
		if w.dialog != nil && !w.closed {
			n++
		}
	}
	return n
}

// Focused returns the window that last received SetFocus.
func (f *Fake) Focused() desktop.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.focus
}

func (f *Fake) allocLocked() desktop.Handle {
	h := f.next
	f.next++
	return h
}

func (f *Fake) addLocked(info desktop.WindowInfo, controls []desktop.Control, d *Dialog) desktop.Handle {
	h := f.allocLocked()
	info.Handle = h
	f.windows[h] = &window{info: info, controls: controls, dialog: d}
	f.order = append(f.order, h)
	return h
}

func (f *Fake) pidLocked(h desktop.Handle) int {
	if w, ok := f.windows[h]; ok {
		return w.info.PID
	}
	return 0
}

func (f *Fake) closeLocked(h desktop.Handle) {
	w, ok := f.windows[h]
	if !ok || w.closed {
		return
	}
	w.closed = true
	if f.foreground == h {
		f.foreground = w.info.Owner
	}
}

func (f *Fake) liveLocked(h desktop.Handle) (*window, bool) {
	w, ok := f.windows[h]
	if !ok || w.closed {
		return nil, false
	}
	return w, true
}

func (f *Fake) snapshotLocked(w *window) desktop.WindowInfo {
	info := w.info
	info.Active = f.foreground == info.Handle
	return info
}

// openDialogLocked returns the most recently opened dialog still on screen.
func (f *Fake) openDialogLocked() (*window, bool) {
	for i := len(f.order) - 1; i >= 0; i-- {
		w := f.windows[f.order[i]]
		if w.dialog != nil && !w.closed && w.info.Visible {
			return w, true
		}
	}
	return nil, false
}

// desktop.Windows

func (f *Fake) TopLevel() ([]desktop.WindowInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []desktop.WindowInfo
	for _, h := range f.order {
		if w, ok := f.liveLocked(h); ok {
			out = append(out, f.snapshotLocked(w))
		}
	}
	return out, nil
}

func (f *Fake) Info(h desktop.Handle) (desktop.WindowInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.liveLocked(h)
	if !ok {
		return desktop.WindowInfo{}, desktop.ErrStale
	}
	return f.snapshotLocked(w), nil
}

func (f *Fake) IsAlive(h desktop.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.liveLocked(h)
	return ok
}

func (f *Fake) Foreground() desktop.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.foreground
}

func (f *Fake) Show(h desktop.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.liveLocked(h)
	if !ok {
		return desktop.ErrStale
	}
	w.info.Visible = true
	return nil
}

func (f *Fake) Restore(h desktop.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.liveLocked(h)
	if !ok {
		return desktop.ErrStale
	}
	w.info.Minimized = false
	return nil
}

func (f *Fake) SetForeground(h desktop.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.liveLocked(h); !ok {
		return desktop.ErrStale
	}
	if f.RefuseForeground > 0 {
		f.RefuseForeground--
		return fmt.Errorf("SetForegroundWindow %s refused", h)
	}
	f.foreground = h
	return nil
}

func (f *Fake) SetFocus(h desktop.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.liveLocked(h); !ok {
		return desktop.ErrStale
	}
	f.focus = h
	return nil
}

func (f *Fake) WaitInputIdle(ctx context.Context, h desktop.Handle, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.liveLocked(h); !ok {
		return desktop.ErrStale
	}
	f.IdleWait = append(f.IdleWait, h)
	return ctx.Err()
}

func (f *Fake) Children(h desktop.Handle) ([]desktop.Control, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.liveLocked(h)
	if !ok {
		return nil, desktop.ErrStale
	}
	return append([]desktop.Control(nil), w.controls...), nil
}

func (f *Fake) Invoke(c desktop.Control) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Invoked = append(f.Invoked, c.Handle)
	for _, h := range f.order {
		w, ok := f.liveLocked(h)
		if !ok {
			continue
		}
		for _, ctl := range w.controls {
			if ctl.Handle == c.Handle {
				if w.dialog != nil && w.dialog.CloseOnInvoke {
					f.closeLocked(h)
				}
				return nil
			}
		}
	}
	return desktop.ErrStale
}

// desktop.Input

// Chord renders a key and its modifiers the way Taps records them.
func Chord(key string, mods ...string) string {
	if len(mods) == 0 {
		return key
	}
	return strings.Join(mods, "+") + "+" + key
}

// ChordOf returns the chord of the last stroke in a key sequence.
func ChordOf(seq string) string {
	strokes, err := keys.Parse(seq)
	if err != nil || len(strokes) == 0 {
		return ""
	}
	s := strokes[len(strokes)-1]
	return Chord(s.Key, s.Mods...)
}

func (f *Fake) Tap(key string, mods ...string) error {
	chord := Chord(key, mods...)
	if f.TapErr != nil {
		if err := f.TapErr(chord); err != nil {
			return err
		}
	}

	f.mu.Lock()
	f.Taps = append(f.Taps, chord)
	f.reactLocked(chord)
	hook := f.OnTap
	f.mu.Unlock()

	if hook != nil {
		hook(f, chord)
	}
	return nil
}

func (f *Fake) reactLocked(chord string) {
	km := f.Keymap
	if d, ok := f.openDialogLocked(); ok {
		for _, c := range d.dialog.CloseOnChord {
			if c == chord {
				f.closeLocked(d.info.Handle)
				return
			}
		}
	}

	switch chord {
	case ChordOf(km.Paste):
		text, _ := f.Board.Read()
		f.Input += text
	case ChordOf(km.Copy):
		if d, ok := f.openDialogLocked(); ok && d.dialog.Text != "" {
			_ = f.Board.Write(d.dialog.Text)
		} else if f.selected {
			_ = f.Board.Write(f.Document)
		}
	case ChordOf(km.SelectAll), ChordOf(km.SelectToEnd):
		f.selected = true
	case ChordOf(km.SelectStart):
		f.selected = false
	case ChordOf(km.LineBreak):
		f.Input += "\n"
	case ChordOf(km.ClearInput):
		f.Input = ""
	case ChordOf(km.Commit):
		f.Sent = append(f.Sent, f.Input)
		f.Input = ""
	}
}

func (f *Fake) Type(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Typed = append(f.Typed, text)
	f.Input += text
	return nil
}

func (f *Fake) Click(x, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Clicks = append(f.Clicks, Point{x, y})
	f.selected = false
	if d, ok := f.openDialogLocked(); ok && d.dialog.CloseOnButtonClick {
		for _, c := range d.controls {
			if x >= c.Rect.Left && x < c.Rect.Right && y >= c.Rect.Top && y < c.Rect.Bottom {
				f.closeLocked(d.info.Handle)
				return nil
			}
		}
	}
	return nil
}

// desktop.Processes

func (f *Fake) FindByName(_ context.Context, name string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for n, pids := range f.Procs {
		if strings.EqualFold(n, name) {
			return append([]int(nil), pids...), nil
		}
	}
	return nil, nil
}

// desktop.Screen

func (f *Fake) Bounds() (desktop.Rect, error) {
	return desktop.Rect{Right: 1920, Bottom: 1080}, nil
}

// Capture records r and returns a 1x1 PNG.
func (f *Fake) Capture(r desktop.Rect) ([]byte, error) {
	f.mu.Lock()
	f.Captures = append(f.Captures, r)
	f.mu.Unlock()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// desktop.Launcher

func (f *Fake) Launch(exe string, args ...string) (int, error) {
	f.mu.Lock()
	f.Launches = append(f.Launches, append([]string{exe}, args...))
	hook := f.OnLaunch
	f.mu.Unlock()
	if hook != nil {
		return hook(f, exe, args), nil
	}
	return 0, nil
}
