// Package tray shows batch progress in the notification area and offers a
// Stop item that aborts the run.
package tray

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/getlantern/systray"
)

const title = "chatbench"

type Tray struct {
	stop func()

	mu      sync.Mutex
	ready   bool
	tooltip string
}

// New returns a tray whose Stop item calls stop.
func New(stop func()) *Tray {
	return &Tray{stop: stop, tooltip: title}
}

// Run shows the icon and blocks until ctx is done. The tray window and its
// message loop live on the calling goroutine's OS thread, which stays locked
// until Run returns.
func (t *Tray) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(func() { t.onReady(ctx) }, func() { log.Printf("Tray: closed") })
	return nil
}

func (t *Tray) onReady(ctx context.Context) {
	if icon, err := Icon(runtime.GOOS); err != nil {
		log.Printf("Tray: no icon: %v", err)
	} else {
		systray.SetIcon(icon)
	}
	systray.SetTitle(title)
	mStop := systray.AddMenuItem("Stop batch", "Stop after the current step and write the timings")

	t.mu.Lock()
	t.ready = true
	systray.SetTooltip(t.tooltip)
	t.mu.Unlock()

	go func() {
		select {
		case <-mStop.ClickedCh:
			log.Printf("Tray: stop requested")
			mStop.Disable()
			if t.stop != nil {
				t.stop()
			}
		case <-ctx.Done():
		}
	}()
}

// Update shows the current item in the tooltip.
func (t *Tray) Update(index, total int, item string) {
	tip := Tooltip(index, total, item)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tooltip = tip
	if t.ready {
		systray.SetTooltip(tip)
	}
}

// Tooltip renders "chatbench [i/n] name", cutting long names so the text fits
// the 127-character tooltip limit on Windows.
func Tooltip(index, total int, item string) string {
	tip := fmt.Sprintf("%s [%d/%d] %s", title, index, total, item)
	if r := []rune(tip); len(r) > 127 {
		tip = string(r[:124]) + "..."
	}
	return tip
}
