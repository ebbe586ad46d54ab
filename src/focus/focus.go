// Package focus forces a window to the foreground and verifies it is ready
// for input.
package focus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chatbench/src/desktop"
	"chatbench/src/failure"
)

const (
	firstIdleWait = 5 * time.Second
	retryIdleWait = 3 * time.Second
)

type Controller struct {
	windows desktop.Windows
}

func New(w desktop.Windows) *Controller {
	return &Controller{windows: w}
}

// EnsureFocused restores, raises and focuses h, then checks that it became the
// active window. Activation is retried once. A false result comes with a
// failure.Focus error, which callers treat as degraded rather than fatal.
func (c *Controller) EnsureFocused(ctx context.Context, h desktop.Handle) (bool, error) {
	info, err := c.windows.Info(h)
	if err != nil {
		return false, failure.New(failure.Discovery, "focus", err)
	}
	if !info.Visible {
		if err := c.windows.Show(h); err != nil {
			log.Printf("Focus: show %s: %v", h, err)
		}
	}
	if info.Minimized {
		if err := c.windows.Restore(h); err != nil {
			log.Printf("Focus: restore %s: %v", h, err)
		}
	}

	var errs []error
	for attempt, idle := range []time.Duration{firstIdleWait, retryIdleWait} {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := c.activate(ctx, h, idle); err != nil {
			if errors.Is(err, desktop.ErrStale) {
				return false, failure.New(failure.Discovery, "focus", err)
			}
			errs = append(errs, err)
		}
		if c.verify(h) {
			if attempt > 0 {
				log.Printf("Focus: %s active after retry", h)
			}
			return true, nil
		}
		errs = append(errs, fmt.Errorf("attempt %d: %s is not the active window", attempt+1, h))
	}
	return false, failure.New(failure.Focus, "focus", errors.Join(errs...))
}

func (c *Controller) activate(ctx context.Context, h desktop.Handle, idle time.Duration) error {
	if err := c.windows.SetForeground(h); err != nil {
		return err
	}
	if err := c.windows.WaitInputIdle(ctx, h, idle); err != nil {
		if errors.Is(err, desktop.ErrStale) {
			return err
		}
		log.Printf("Focus: %s not idle: %v", h, err)
	}
	return c.windows.SetFocus(h)
}

func (c *Controller) verify(h desktop.Handle) bool {
	info, err := c.windows.Info(h)
	if err != nil {
		return false
	}
	return info.Active && info.Visible && !info.Minimized
}
