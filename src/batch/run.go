package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"time"

	"chatbench/src/capture"
	"chatbench/src/config"
	"chatbench/src/desktop"
	"chatbench/src/failure"
	"chatbench/src/logutil"
	"chatbench/src/wait"
)

type Orchestrator struct {
	bc       *Context
	opts     Options
	criteria struct{ pid int }
	now      func() time.Time
	// recorded is set once the current item has its timing entry.
	recorded bool
}

func New(bc *Context, opts Options) (*Orchestrator, error) {
	if bc == nil || bc.Recorder == nil || bc.Store == nil {
		return nil, errors.New("batch context needs a recorder and a store")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{bc: bc, opts: opts, now: now}, nil
}

// Run processes items in order. The timing manifest is flushed on every exit
// path, including a panic escaping the loop, and cancellation only stops the
// loop between steps.
func (o *Orchestrator) Run(ctx context.Context, items []PromptItem) (m Manifest) {
	bc := o.bc
	bc.Total = len(items)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Batch: aborted by panic: %v", r)
		}
		path, err := bc.Recorder.Flush()
		if err != nil {
			log.Printf("Batch: flushing timings failed: %v", err)
		}
		m.Path = path
		m.Entries = bc.Recorder.Entries()
		log.Printf("Batch: %d items, %d saved, %d degraded, %d failed; timings in %s",
			bc.Total, bc.Saved, bc.Degraded, bc.Failed, path)
	}()

	o.prepare(ctx)

	for i := range items {
		if ctx.Err() != nil {
			log.Printf("Batch: cancelled after %d of %d items", i, len(items))
			break
		}
		bc.Index = i + 1
		if o.opts.Progress != nil {
			o.opts.Progress(bc, &items[i])
		}
		m.Items = append(m.Items, o.runItem(ctx, &items[i]))
	}

	if ctx.Err() == nil {
		m.TimingsPath = o.fetchTimings(ctx)
	}
	return m
}

func (o *Orchestrator) prefix() string { return logutil.Progress(o.bc.Index, o.bc.Total) }

// prepare launches the target when it is not running yet and installs the
// instrumentation script.
func (o *Orchestrator) prepare(ctx context.Context) {
	s := o.opts.Settings
	if o.opts.Launcher != nil && s.TargetExe != "" {
		if _, err := o.opts.Locator.Locate(ctx, o.opts.Criteria, 0); err != nil {
			var args []string
			if s.WorkspaceDir != "" {
				args = append(args, s.WorkspaceDir)
			}
			pid, err := o.opts.Launcher.Launch(s.TargetExe, args...)
			if err != nil {
				log.Printf("Batch: %v", err)
			} else {
				log.Printf("Batch: launched %s (pid %d)", s.TargetExe, pid)
				o.criteria.pid = pid
			}
		}
	}

	if s.Script == "" || o.opts.Instrument == nil {
		return
	}
	h := o.acquire(ctx, s.LocateTimeout)
	if h == 0 && ctx.Err() != nil {
		return
	}
	if err := o.opts.Instrument.Install(ctx, s.Script); err != nil {
		log.Printf("Batch: instrumentation not installed: %v", err)
	}
}

func (o *Orchestrator) fetchTimings(ctx context.Context) string {
	if o.opts.Settings.Script == "" || o.opts.Instrument == nil {
		return ""
	}
	o.acquire(ctx, o.opts.Settings.LocateTimeout)
	path, err := o.opts.Instrument.Fetch(ctx, o.bc.Store.Dir(), o.bc.Model, o.now())
	if err != nil {
		log.Printf("Batch: fetching internal timings failed: %v", err)
		return ""
	}
	return path
}

// acquire locates and focuses the main window. A zero handle means the
// window is unknown and input goes to whatever has focus.
func (o *Orchestrator) acquire(ctx context.Context, budget time.Duration) desktop.Handle {
	c := o.opts.Criteria
	if o.criteria.pid > 0 {
		c.PID = o.criteria.pid
	}
	info, err := o.opts.Locator.Locate(ctx, c, budget)
	if err != nil {
		log.Printf("%s Batch: %v; continuing with global input", o.prefix(), err)
		return 0
	}
	if ok, err := o.opts.Focus.EnsureFocused(ctx, info.Handle); !ok {
		log.Printf("%s Batch: %v; continuing unfocused", o.prefix(), err)
	}
	return info.Handle
}

func (o *Orchestrator) runItem(ctx context.Context, item *PromptItem) (res ItemResult) {
	res = ItemResult{Source: item.Name()}
	o.recorded = false
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Printf("%s Batch: %s: %v", o.prefix(), item.Name(), err)
			if !o.recorded {
				o.persistFailure(item, &res, err)
			}
		}
	}()

	log.Printf("%s Batch: sending %s (%d bytes)", o.prefix(), item.Name(), len(item.Content))
	h, err := o.send(ctx, item)
	if err != nil {
		o.persistFailure(item, &res, err)
		return res
	}

	got, capErr := o.opts.Capturer.Capture(ctx, h)
	o.persistCapture(item, &res, h, got, capErr)

	o.closeDocument(ctx, h)
	return res
}

// send drives the chat from preparation to export and returns the handle
// used, which may be zero. SentTimestamp is set only once the commit chord
// has actually gone out.
func (o *Orchestrator) send(ctx context.Context, item *PromptItem) (desktop.Handle, error) {
	km := o.opts.Keymap
	s := o.opts.Settings
	in := o.opts.Injector

	h := o.acquire(ctx, s.LocateTimeout)
	if err := ctx.Err(); err != nil {
		return h, err
	}

	chord := func(seq string) error {
		return o.deliver(ctx, &h, func(h desktop.Handle) error { return in.Chord(h, seq) })
	}
	literal := func(text string) error {
		return o.deliver(ctx, &h, func(h desktop.Handle) error { return in.TypeLiteral(ctx, h, text) })
	}

	if err := chord(km.FocusChat); err != nil {
		return h, err
	}
	if err := wait.Sleep(ctx, s.StepDelay); err != nil {
		return h, err
	}
	if err := chord(km.ClearInput); err != nil {
		return h, err
	}
	if ref := o.opts.Chat.WorkspaceReference; ref != "" {
		if err := literal(ref); err != nil {
			return h, err
		}
		if err := wait.Sleep(ctx, s.StepDelay); err != nil {
			return h, err
		}
		if err := chord(km.AcceptSuggestion); err != nil {
			return h, err
		}
	}

	err := o.deliver(ctx, &h, func(h desktop.Handle) error { return in.Inject(ctx, h, item.Content) })
	if failure.KindOf(err) == failure.Clipboard {
		log.Printf("%s Batch: %v", o.prefix(), err)
	} else if err != nil {
		return h, err
	}

	var at time.Time
	if err := o.deliver(ctx, &h, func(h desktop.Handle) error {
		at = o.now()
		return in.Chord(h, km.Commit)
	}); err != nil {
		return h, err
	}
	item.SentTimestamp = at
	log.Printf("%s Batch: sent at %s", o.prefix(), at.Format("15:04:05.000"))

	if err := wait.Sleep(ctx, s.SettleDelay); err != nil {
		return h, err
	}
	if err := o.awaitResponse(ctx, h); err != nil {
		return h, err
	}

	if cmd := o.opts.Chat.ExportCommand; cmd != "" {
		if err := literal(cmd); err != nil {
			return h, err
		}
		if err := chord(km.Commit); err != nil {
			return h, err
		}
		if err := wait.Sleep(ctx, s.SettleDelay); err != nil {
			return h, err
		}
	}
	return h, nil
}

// deliver runs one input step against *h. When the window has gone away the
// step sent nothing, so the window is acquired again and the step repeated
// with the new handle, or with global input when none is found.
func (o *Orchestrator) deliver(ctx context.Context, h *desktop.Handle, step func(desktop.Handle) error) error {
	err := step(*h)
	if *h == 0 || !errors.Is(err, failure.Discovery) {
		return err
	}
	log.Printf("%s Batch: %v; acquiring the window again", o.prefix(), err)
	*h = o.acquire(ctx, o.opts.Settings.LocateTimeout)
	if err := ctx.Err(); err != nil {
		return err
	}
	return step(*h)
}

// awaitResponse waits for generation. In ready mode the probe is polled for
// up to the same budget, so an unobservable ready state costs no more than
// the fixed wait.
func (o *Orchestrator) awaitResponse(ctx context.Context, h desktop.Handle) error {
	s := o.opts.Settings
	if s.WaitMode != config.WaitModeReady || o.opts.Ready == nil {
		return wait.Sleep(ctx, s.ResponseWait)
	}
	start := o.now()
	err := wait.Until(ctx, s.ReadyPoll, s.ResponseWait, func(ctx context.Context) (bool, error) {
		return o.opts.Ready(ctx, h)
	})
	switch {
	case err == nil:
		log.Printf("%s Batch: response ready after %s", o.prefix(), o.now().Sub(start).Round(time.Millisecond))
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, wait.ErrBudgetExhausted):
		log.Printf("%s Batch: ready state not observed, used the full %s budget", o.prefix(), s.ResponseWait)
		return nil
	default:
		log.Printf("%s Batch: ready probe failed (%v), waiting out the budget", o.prefix(), err)
		return wait.Sleep(ctx, s.ResponseWait-o.now().Sub(start))
	}
}

func (o *Orchestrator) persistCapture(item *PromptItem, res *ItemResult, h desktop.Handle, got capture.Result, capErr error) {
	bc := o.bc
	res.Class = got.Class.String()

	if capErr == nil {
		path, err := bc.Store.Save(item.Name(), got.Text)
		res.Output = path
		if err != nil {
			res.Outcome = ErrorFile
			res.Err = err
			bc.Failed++
			log.Printf("%s Batch: %v", o.prefix(), err)
		} else {
			res.Outcome = Saved
			bc.Saved++
			log.Printf("%s Batch: saved %s (%s)", o.prefix(), path, got.Method)
		}
	} else {
		res.Err = capErr
		res.Outcome = Review
		bc.Degraded++
		note := reviewNote(item, bc.Model, got, capErr)
		if shot := o.snapshot(item, h, got.Class.String()); shot != "" {
			note += "Screenshot: " + filepath.Base(shot) + "\n"
		}
		path, err := bc.Store.SaveReview(item.Name(), got.Class.String(), note)
		if err != nil {
			path, _ = bc.Store.SaveError(err, note)
		}
		res.Output = path
		log.Printf("%s Batch: capture %s, review note %s", o.prefix(), got.Class, path)
	}
	o.record(item, res.Output)
}

func (o *Orchestrator) snapshot(item *PromptItem, h desktop.Handle, class string) string {
	if o.opts.Snapshot == nil {
		return ""
	}
	img, err := o.opts.Snapshot(h)
	if err != nil {
		log.Printf("%s Batch: no screenshot for review: %v", o.prefix(), err)
		return ""
	}
	path, err := o.bc.Store.SaveSnapshot(item.Name(), class, img)
	if err != nil {
		log.Printf("%s Batch: %v", o.prefix(), err)
		return ""
	}
	return path
}

// persistFailure writes a review note for an item that broke before capture.
func (o *Orchestrator) persistFailure(item *PromptItem, res *ItemResult, cause error) {
	bc := o.bc
	bc.Failed++
	res.Outcome = Failed
	res.Err = cause
	res.Class = "failed"
	log.Printf("%s Batch: %s failed: %v", o.prefix(), item.Name(), cause)

	note := fmt.Sprintf("No response was captured for %s.\nModel: %s\nError: %v\n", item.Name(), bc.Model, cause)
	path, err := bc.Store.SaveReview(item.Name(), "failed", note)
	if err != nil {
		path, _ = bc.Store.SaveError(err, note)
	}
	res.Output = path
	o.record(item, path)
}

// record adds the item's timing entry. It runs at most once per item.
func (o *Orchestrator) record(item *PromptItem, path string) {
	if o.recorded {
		return
	}
	o.recorded = true
	item.OutputPath = path
	sent := item.SentTimestamp
	if sent.IsZero() {
		sent = o.now()
	}
	o.bc.Recorder.Record(sent, path, item.Name())
}

func (o *Orchestrator) closeDocument(ctx context.Context, h desktop.Handle) {
	if ctx.Err() != nil {
		return
	}
	if err := o.opts.Injector.Chord(h, o.opts.Keymap.CloseDocument); err != nil {
		log.Printf("%s Batch: closing export: %v", o.prefix(), err)
	}
	wait.Pause(ctx, o.opts.Settings.StepDelay)
	r := o.opts.Dialogs.Dismiss(ctx)
	if r.Found {
		log.Printf("%s Batch: save prompt %s via %s", o.prefix(), r.State, r.Strategy)
	}
}

// reviewNote describes a capture that could not be trusted. Captured dialog
// text is left out.
func reviewNote(item *PromptItem, model string, got capture.Result, err error) string {
	return fmt.Sprintf("No usable response was captured for %s.\nModel: %s\nCapture class: %s\nLast method: %s\nAttempts: %d\nError: %v\n",
		item.Name(), model, got.Class, got.Method, got.Attempts, err)
}

// ControlReady builds a ReadyProbe that watches a child control whose text
// matches re: generation is over once the control has been seen disabled and
// is enabled again.
func ControlReady(w desktop.Windows, re *regexp.Regexp) ReadyProbe {
	sawBusy := false
	return func(_ context.Context, h desktop.Handle) (bool, error) {
		if h == 0 || re == nil {
			return false, nil
		}
		controls, err := w.Children(h)
		if err != nil {
			if errors.Is(err, desktop.ErrUnsupported) || errors.Is(err, desktop.ErrStale) {
				return false, err
			}
			return false, nil
		}
		for _, c := range controls {
			if !re.MatchString(c.Text) {
				continue
			}
			if !c.Enabled {
				sawBusy = true
				return false, nil
			}
			return sawBusy, nil
		}
		return false, nil
	}
}
