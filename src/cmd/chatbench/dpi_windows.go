//go:build windows

package main

import (
	"log"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"
)

const processPerMonitorDPIAware = 2

// enableDPIAwareness makes window rectangles and click coordinates use
// physical pixels on scaled displays. It must run before any window is
// queried.
func enableDPIAwareness() {
	proc := windows.NewLazySystemDLL("shcore.dll").NewProc("SetProcessDpiAwareness")
	if proc.Find() == nil {
		hr, _, _ := proc.Call(processPerMonitorDPIAware)
		if hr == 0 {
			logVirtualScreen("per-monitor")
			return
		}
		log.Printf("chatbench: per-monitor DPI awareness refused (0x%x), trying system awareness", hr)
	}
	legacy := windows.NewLazySystemDLL("user32.dll").NewProc("SetProcessDPIAware")
	if legacy.Find() == nil {
		if ok, _, _ := legacy.Call(); ok != 0 {
			logVirtualScreen("system")
			return
		}
	}
	log.Printf("chatbench: no DPI awareness, fallback clicks may land off target on scaled displays")
}

func logVirtualScreen(mode string) {
	log.Printf("chatbench: %s DPI awareness, virtual screen %dx%d at (%d,%d)", mode,
		win.GetSystemMetrics(win.SM_CXVIRTUALSCREEN), win.GetSystemMetrics(win.SM_CYVIRTUALSCREEN),
		win.GetSystemMetrics(win.SM_XVIRTUALSCREEN), win.GetSystemMetrics(win.SM_YVIRTUALSCREEN))
}
