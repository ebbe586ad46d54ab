// Package desktop is the thin OS layer the automation drives: the window
// registry, synthetic input, process enumeration, display bounds and target
// launching. The Windows build talks to Win32 directly; other platforms get
// input and processes but no window registry.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStale is returned when a handle no longer names a live window.
	ErrStale = errors.New("window no longer exists")
	// ErrUnsupported is returned by operations the platform cannot perform.
	ErrUnsupported = errors.New("not supported on this platform")
)

// Handle is an opaque OS window reference. It may go stale at any time.
type Handle uintptr

func (h Handle) String() string { return fmt.Sprintf("0x%X", uintptr(h)) }

// Rect is a screen rectangle in pixels.
type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }
func (r Rect) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

func (r Rect) Center() (int, int) {
	return r.Left + r.Width()/2, r.Top + r.Height()/2
}

// At returns the point at fractional position (fx, fy) inside r.
func (r Rect) At(fx, fy float64) (int, int) {
	return r.Left + int(float64(r.Width())*fx), r.Top + int(float64(r.Height())*fy)
}

// WindowInfo is a snapshot of a top-level window.
type WindowInfo struct {
	Handle    Handle
	PID       int
	Title     string
	Class     string
	Visible   bool
	Minimized bool
	Active    bool
	Rect      Rect
	// Owner is set for owned windows such as modal dialogs.
	Owner Handle
	// ModalFrame reports the WS_EX_DLGMODALFRAME extended style.
	ModalFrame bool
}

// Control is a child control of a window.
type Control struct {
	Handle  Handle
	Text    string
	Class   string
	Rect    Rect
	Enabled bool
}

// Windows is the window registry and activation API.
type Windows interface {
	TopLevel() ([]WindowInfo, error)
	Info(h Handle) (WindowInfo, error)
	IsAlive(h Handle) bool
	Foreground() Handle
	Show(h Handle) error
	Restore(h Handle) error
	SetForeground(h Handle) error
	SetFocus(h Handle) error
	WaitInputIdle(ctx context.Context, h Handle, timeout time.Duration) error
	Children(h Handle) ([]Control, error)
	// Invoke presses a button control directly.
	Invoke(c Control) error
}

// Input synthesises keystrokes and clicks.
type Input interface {
	Tap(key string, mods ...string) error
	Type(text string) error
	Click(x, y int) error
}

// Processes enumerates running processes.
type Processes interface {
	FindByName(ctx context.Context, name string) ([]int, error)
}

// Screen reports the union of the active displays and grabs parts of it.
type Screen interface {
	Bounds() (Rect, error)
	// Capture returns r as a PNG image.
	Capture(r Rect) ([]byte, error)
}

// Launcher starts the target application.
type Launcher interface {
	Launch(exe string, args ...string) (int, error)
}

// Desktop bundles the platform services.
type Desktop struct {
	Windows   Windows
	Input     Input
	Processes Processes
	Screen    Screen
	Launcher  Launcher
}

// New returns the services for the running platform.
func New() *Desktop {
	return &Desktop{
		Windows:   newWindows(),
		Input:     NewInput(),
		Processes: NewProcesses(),
		Screen:    NewScreen(),
		Launcher:  NewLauncher(),
	}
}
