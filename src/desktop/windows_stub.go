//go:build !windows

package desktop

import (
	"context"
	"time"
)

// stubWindows reports no windows. Locating the target always fails on these
// platforms, and the batch degrades to blind global input.
type stubWindows struct{}

func newWindows() Windows { return &stubWindows{} }

func (*stubWindows) TopLevel() ([]WindowInfo, error) { return nil, ErrUnsupported }
func (*stubWindows) Info(Handle) (WindowInfo, error) { return WindowInfo{}, ErrUnsupported }
func (*stubWindows) IsAlive(Handle) bool { return false }
func (*stubWindows) Foreground() Handle { return 0 }
func (*stubWindows) Show(Handle) error { return ErrUnsupported }
func (*stubWindows) Restore(Handle) error { return ErrUnsupported }
func (*stubWindows) SetForeground(Handle) error { return ErrUnsupported }
func (*stubWindows) SetFocus(Handle) error { return ErrUnsupported }
func (*stubWindows) Children(Handle) ([]Control, error) { return nil, ErrUnsupported }
func (*stubWindows) Invoke(Control) error { return ErrUnsupported }

func (*stubWindows) WaitInputIdle(context.Context, Handle, time.Duration) error {
	return ErrUnsupported
}
