// Package batch sequences the automation components over a queue of prompt
// files. Items run one at a time; a failure inside an item is recorded and
// the loop moves on, so every prompt ends with exactly one artifact and one
// timing entry.
package batch

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"chatbench/src/artifact"
	"chatbench/src/capture"
	"chatbench/src/desktop"
	"chatbench/src/dialog"
	"chatbench/src/keys"
	"chatbench/src/locator"
	"chatbench/src/profile"
	"chatbench/src/recorder"
)

// PromptItem is one prompt file. Content never changes once loaded;
// SentTimestamp and OutputPath are filled in as the item runs.
type PromptItem struct {
	SourcePath    string
	Content       string
	SentTimestamp time.Time
	OutputPath    string
}

// Name is the prompt's file name, used for the manifest's source_file.
func (p PromptItem) Name() string { return filepath.Base(p.SourcePath) }

type Outcome int

const (
	// Saved: a normal capture was written as a response file.
	Saved Outcome = iota
	// Review: the capture was empty or a dialog; a review note was written.
	Review
	// ErrorFile: the response could not be written; an error file holds it.
	ErrorFile
	// Failed: the item broke before capture; a review note holds the error.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Saved:
		return "saved"
	case Review:
		return "review"
	case ErrorFile:
		return "error-file"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type ItemResult struct {
	Source  string
	Output  string
	Outcome Outcome
	Class   string
	Err     error
}

// Manifest summarises a run.
type Manifest struct {
	Entries []recorder.TimingEntry
	// Path is the flushed timestamps file.
	Path  string
	Items []ItemResult
	// TimingsPath is the internal timings file, when instrumentation ran.
	TimingsPath string
}

// Context is the state threaded through a run.
type Context struct {
	Model    string
	Recorder *recorder.Recorder
	Store    *artifact.Store

	Index    int
	Total    int
	Saved    int
	Degraded int
	Failed   int
}

type Locator interface {
	Locate(ctx context.Context, c locator.Criteria, budget time.Duration) (desktop.WindowInfo, error)
}

type Focuser interface {
	EnsureFocused(ctx context.Context, h desktop.Handle) (bool, error)
}

type Injector interface {
	Inject(ctx context.Context, h desktop.Handle, text string) error
	TypeLiteral(ctx context.Context, h desktop.Handle, text string) error
	Chord(h desktop.Handle, seq string) error
}

type Capturer interface {
	Capture(ctx context.Context, h desktop.Handle) (capture.Result, error)
}

type Dismisser interface {
	Dismiss(ctx context.Context) dialog.Result
}

type Instrumenter interface {
	Install(ctx context.Context, script string) error
	Fetch(ctx context.Context, dir, model string, at time.Time) (string, error)
}

// ReadyProbe reports whether the target finished generating a response.
type ReadyProbe func(ctx context.Context, h desktop.Handle) (bool, error)

type Settings struct {
	// SettleDelay follows the commit and export keystrokes.
	SettleDelay time.Duration
	// StepDelay separates the chat preparation keystrokes.
	StepDelay     time.Duration
	ResponseWait  time.Duration
	ReadyPoll     time.Duration
	LocateTimeout time.Duration
	WaitMode      string

	TargetExe    string
	WorkspaceDir string
	// Script is the DevTools instrumentation source; empty skips it.
	Script string
}

type Options struct {
	Locator    Locator
	Focus      Focuser
	Injector   Injector
	Capturer   Capturer
	Dialogs    Dismisser
	Instrument Instrumenter
	Launcher   desktop.Launcher
	Ready      ReadyProbe
	// Snapshot, when set, grabs the screen for review notes.
	Snapshot func(h desktop.Handle) ([]byte, error)

	Keymap   keys.Keymap
	Criteria locator.Criteria
	Chat     profile.Chat
	Settings Settings

	// Progress is called before each item.
	Progress func(bc *Context, item *PromptItem)
	Now      func() time.Time
}

func (o Options) validate() error {
	switch {
	case o.Locator == nil:
		return errors.New("Locator is required")
	case o.Focus == nil:
		return errors.New("Focus is required")
	case o.Injector == nil:
		return errors.New("Injector is required")
	case o.Capturer == nil:
		return errors.New("Capturer is required")
	case o.Dialogs == nil:
		return errors.New("Dialogs is required")
	}
	return nil
}
