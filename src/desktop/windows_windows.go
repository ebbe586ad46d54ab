//go:build windows

package desktop

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"
)

var (
	user32DLL                    = syscall.NewLazyDLL("user32.dll")
	procGetWindowTextW           = user32DLL.NewProc("GetWindowTextW")
	procGetWindowTextLengthW     = user32DLL.NewProc("GetWindowTextLengthW")
	procWaitForInputIdle         = user32DLL.NewProc("WaitForInputIdle")
	procAllowSetForegroundWindow = user32DLL.NewProc("AllowSetForegroundWindow")
)

const (
	waitTimeout = 0x102
	asfwAny     = ^uintptr(0)
)

// EnumWindows callbacks are a finite resource, so one is created for the
// process and fed through enumBuf under enumMu.
var (
	enumMu       sync.Mutex
	enumBuf      []Handle
	enumCallback = windows.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		enumBuf = append(enumBuf, Handle(hwnd))
		return 1
	})
)

type win32Windows struct{}

func newWindows() Windows { return &win32Windows{} }

func (*win32Windows) TopLevel() ([]WindowInfo, error) {
	enumMu.Lock()
	enumBuf = nil
	err := windows.EnumWindows(enumCallback, nil)
	handles := enumBuf
	enumBuf = nil
	enumMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("enumerate windows: %w", err)
	}

	infos := make([]WindowInfo, 0, len(handles))
	for _, h := range handles {
		info, err := describe(h)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (*win32Windows) Info(h Handle) (WindowInfo, error) { return describe(h) }

func (*win32Windows) IsAlive(h Handle) bool {
	return h != 0 && windows.IsWindow(windows.HWND(h))
}

func (*win32Windows) Foreground() Handle { return Handle(win.GetForegroundWindow()) }

func (w *win32Windows) Show(h Handle) error {
	if !w.IsAlive(h) {
		return ErrStale
	}
	win.ShowWindow(win.HWND(h), win.SW_SHOW)
	return nil
}

func (w *win32Windows) Restore(h Handle) error {
	if !w.IsAlive(h) {
		return ErrStale
	}
	win.ShowWindow(win.HWND(h), win.SW_RESTORE)
	return nil
}

// SetForeground attaches to the current foreground thread so Windows accepts
// the activation request from a background process.
func (w *win32Windows) SetForeground(h Handle) error {
	if !w.IsAlive(h) {
		return ErrStale
	}
	hwnd := win.HWND(h)
	procAllowSetForegroundWindow.Call(asfwAny)

	fg := win.GetForegroundWindow()
	fgThread := win.GetWindowThreadProcessId(fg, nil)
	cur := win.GetCurrentThreadId()
	if fgThread != 0 && fgThread != cur {
		win.AttachThreadInput(int32(cur), int32(fgThread), true)
		defer win.AttachThreadInput(int32(cur), int32(fgThread), false)
	}
	win.BringWindowToTop(hwnd)
	if !win.SetForegroundWindow(hwnd) {
		return fmt.Errorf("SetForegroundWindow %s refused", h)
	}
	return nil
}

func (w *win32Windows) SetFocus(h Handle) error {
	if !w.IsAlive(h) {
		return ErrStale
	}
	hwnd := win.HWND(h)
	target := win.GetWindowThreadProcessId(hwnd, nil)
	cur := win.GetCurrentThreadId()
	if target != 0 && target != cur {
		win.AttachThreadInput(int32(cur), int32(target), true)
		defer win.AttachThreadInput(int32(cur), int32(target), false)
	}
	win.SetActiveWindow(hwnd)
	win.SetFocus(hwnd)
	return nil
}

// WaitInputIdle blocks until the owning process has drained its input queue
// or timeout elapses.
func (w *win32Windows) WaitInputIdle(ctx context.Context, h Handle, timeout time.Duration) error {
	if !w.IsAlive(h) {
		return ErrStale
	}
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	var pid uint32
	win.GetWindowThreadProcessId(win.HWND(h), &pid)
	proc, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION|windows.SYNCHRONIZE, false, pid)
	if err != nil {
		return fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(proc)

	r, _, callErr := procWaitForInputIdle.Call(uintptr(proc), uintptr(timeout.Milliseconds()))
	switch r {
	case 0:
		return nil
	case waitTimeout:
		return fmt.Errorf("process %d not idle after %s", pid, timeout)
	default:
		return fmt.Errorf("WaitForInputIdle: %v", callErr)
	}
}

func (w *win32Windows) Children(h Handle) ([]Control, error) {
	if !w.IsAlive(h) {
		return nil, ErrStale
	}
	enumMu.Lock()
	enumBuf = nil
	windows.EnumChildWindows(windows.HWND(h), enumCallback, nil)
	handles := enumBuf
	enumBuf = nil
	enumMu.Unlock()

	controls := make([]Control, 0, len(handles))
	for _, c := range handles {
		hwnd := win.HWND(c)
		var r win.RECT
		win.GetWindowRect(hwnd, &r)
		controls = append(controls, Control{
			Handle:  c,
			Text:    messageText(hwnd),
			Class:   className(hwnd),
			Rect:    fromRECT(r),
			Enabled: win.IsWindowEnabled(hwnd),
		})
	}
	return controls, nil
}

func (w *win32Windows) Invoke(c Control) error {
	if !w.IsAlive(c.Handle) {
		return ErrStale
	}
	win.SendMessage(win.HWND(c.Handle), win.BM_CLICK, 0, 0)
	return nil
}

func describe(h Handle) (WindowInfo, error) {
	hwnd := win.HWND(h)
	if h == 0 || !windows.IsWindow(windows.HWND(h)) {
		return WindowInfo{}, ErrStale
	}
	var pid uint32
	win.GetWindowThreadProcessId(hwnd, &pid)
	var r win.RECT
	win.GetWindowRect(hwnd, &r)
	exStyle := win.GetWindowLong(hwnd, win.GWL_EXSTYLE)
	return WindowInfo{
		Handle:     h,
		PID:        int(pid),
		Title:      windowText(hwnd),
		Class:      className(hwnd),
		Visible:    win.IsWindowVisible(hwnd),
		Minimized:  win.IsIconic(hwnd),
		Active:     win.GetForegroundWindow() == hwnd,
		Rect:       fromRECT(r),
		Owner:      Handle(win.GetWindow(hwnd, win.GW_OWNER)),
		ModalFrame: exStyle&win.WS_EX_DLGMODALFRAME != 0,
	}, nil
}

func windowText(hwnd win.HWND) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}

// messageText reads control text with WM_GETTEXT, which also works across
// processes for button captions.
func messageText(hwnd win.HWND) string {
	n := win.SendMessage(hwnd, win.WM_GETTEXTLENGTH, 0, 0)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	win.SendMessage(hwnd, win.WM_GETTEXT, uintptr(len(buf)), uintptr(unsafe.Pointer(&buf[0])))
	return windows.UTF16ToString(buf)
}

func className(hwnd win.HWND) string {
	buf := make([]uint16, 256)
	n, err := win.GetClassName(hwnd, &buf[0], len(buf))
	if err != nil || n == 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}

func fromRECT(r win.RECT) Rect {
	return Rect{Left: int(r.Left), Top: int(r.Top), Right: int(r.Right), Bottom: int(r.Bottom)}
}
