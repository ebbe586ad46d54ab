//go:build windows

package notification

import (
	"fmt"
	"syscall"

	"github.com/lxn/win"
)

func showMessage(title, message string, isError bool) error {
	titlePtr, err := syscall.UTF16PtrFromString(title)
	if err != nil {
		return fmt.Errorf("message box title: %w", err)
	}
	textPtr, err := syscall.UTF16PtrFromString(message)
	if err != nil {
		return fmt.Errorf("message box text: %w", err)
	}
	style := uint32(win.MB_OK | win.MB_TOPMOST | win.MB_SETFOREGROUND)
	if isError {
		style |= win.MB_ICONERROR
	} else {
		style |= win.MB_ICONINFORMATION
	}
	if win.MessageBox(0, textPtr, titlePtr, style) == 0 {
		return fmt.Errorf("MessageBoxW failed")
	}
	return nil
}
