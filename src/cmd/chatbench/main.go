package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chatbench/src/artifact"
	"chatbench/src/batch"
	"chatbench/src/capture"
	"chatbench/src/clipboard"
	"chatbench/src/config"
	"chatbench/src/desktop"
	"chatbench/src/dialog"
	"chatbench/src/focus"
	"chatbench/src/hotkey"
	"chatbench/src/inject"
	"chatbench/src/instrument"
	"chatbench/src/locator"
	"chatbench/src/logutil"
	"chatbench/src/notification"
	"chatbench/src/profile"
	"chatbench/src/recorder"
	"chatbench/src/singleinstance"
	"chatbench/src/tray"
)

const (
	stepDelay = 500 * time.Millisecond
	readyPoll = time.Second
)

func main() {
	enableDPIAwareness()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := runWithArgs(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"chatbench"}
	}
	cmd := newRootCmd(runBatch)
	cmd.SetArgs(args[1:])
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(run func(ctx context.Context, index int) error) *cobra.Command {
	return &cobra.Command{
		Use:   "chatbench <model-index>",
		Short: "Send every prompt file to the editor's AI chat and save the responses",
		Long: "chatbench drives the AI chat panel of a running editor through the desktop:\n" +
			"each prompt file is pasted, sent and exported, and the response is saved\n" +
			"under output_<model>/ together with a timestamps manifest.",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return fmt.Errorf("%w\nusage: %s", err, cmd.Use)
			}
			_, err := parseModelIndex(args[0])
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			index, _ := parseModelIndex(args[0])
			return run(cmd.Context(), index)
		},
	}
}

func parseModelIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("model index must be a non-negative integer, got %q", s)
	}
	return n, nil
}

// executableName is the process name the locator's process strategy looks
// for.
func executableName(targetExe, fallback string) string {
	if targetExe != "" {
		return filepath.Base(targetExe)
	}
	return fallback
}

// runBatch wires the components and runs the batch. Once prompts are loaded
// it always returns nil: failures inside the batch are logged and recorded in
// the output folder.
func runBatch(ctx context.Context, index int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logutil.Setup(cfg.EnableFileLogging)

	p, err := profile.Load(cfg.ProfilePath)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	model := p.ModelName(index)
	log.Printf("chatbench: model %d is %s", index, model)

	if status, running := singleinstance.NewClient(cfg.SingleInstancePort).Detect(ctx); running {
		notification.ShowBlockingError("chatbench", fmt.Sprintf("A batch is already running: %s", status))
		return singleinstance.ErrAlreadyRunning
	}

	board, err := clipboard.NewSystem()
	if err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}

	items, err := batch.LoadPrompts(cfg.PromptDir, cfg.PromptGlobs)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no prompt files matching %v in %s", cfg.PromptGlobs, cfg.PromptDir)
	}
	log.Printf("chatbench: %d prompts from %s", len(items), cfg.PromptDir)

	store, err := artifact.NewStore(artifact.OutputDir(cfg.OutputRoot, model), model)
	if err != nil {
		return err
	}
	rec := recorder.New(store.Dir(), model, time.Now())

	var script string
	if cfg.DevToolsScript != "" {
		data, err := os.ReadFile(cfg.DevToolsScript)
		if err != nil {
			log.Printf("chatbench: instrumentation disabled: %v", err)
		} else {
			script = string(data)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := desktop.New()
	km := p.HostKeymap()
	criteria := locator.Criteria{
		Title:       p.TitleRegexp(),
		Executable:  executableName(cfg.TargetExe, p.Target.Executable),
		DialogClass: p.Dialog.Class,
	}
	loc := locator.New(d.Windows, d.Processes)
	injector := inject.New(d.Windows, d.Input, board, km,
		inject.WithCharDelay(time.Duration(p.Chat.CharDelayMs)*time.Millisecond))
	watcher := dialog.New(d.Windows, d.Input, km, p,
		dialog.WithTimeout(cfg.DialogTimeout),
		dialog.WithPoll(cfg.DialogPoll),
		dialog.WithScreen(d.Screen),
		dialog.WithMainWindow(func() desktop.Handle {
			info, err := loc.Locate(ctx, criteria, 0)
			if err != nil {
				return 0
			}
			return info.Handle
		}))
	capturer := capture.New(d.Windows, d.Input, board, km, p.Capture.Markers, capture.WithDismisser(watcher))

	var status atomic.Value
	status.Store(model + " starting")
	lock := singleinstance.NewServer(cfg.SingleInstancePort, func() string { return status.Load().(string) })
	if err := lock.Start(ctx); err != nil {
		if errors.Is(err, singleinstance.ErrAlreadyRunning) {
			return err
		}
		log.Printf("chatbench: single-instance lock unavailable: %v", err)
	}
	defer lock.Close()

	var tr *tray.Tray
	if cfg.TrayEnabled {
		tr = tray.New(cancel)
	}

	bc := &batch.Context{Model: model, Recorder: rec, Store: store}
	orch, err := batch.New(bc, batch.Options{
		Locator:    loc,
		Focus:      focus.New(d.Windows),
		Injector:   injector,
		Capturer:   capturer,
		Dialogs:    watcher,
		Instrument: instrument.New(d.Windows, injector, board, km, p),
		Launcher:   d.Launcher,
		Ready:      batch.ControlReady(d.Windows, p.ReadyRegexp()),
		Snapshot: func(h desktop.Handle) ([]byte, error) {
			return desktop.Snapshot(d.Windows, d.Screen, h)
		},
		Keymap:   km,
		Criteria: criteria,
		Chat:     p.Chat,
		Settings: batch.Settings{
			SettleDelay:   cfg.SettleDelay,
			StepDelay:     stepDelay,
			ResponseWait:  cfg.ResponseWait,
			ReadyPoll:     readyPoll,
			LocateTimeout: cfg.LocateTimeout,
			WaitMode:      cfg.WaitMode,
			TargetExe:     cfg.TargetExe,
			WorkspaceDir:  cfg.WorkspaceDir,
			Script:        script,
		},
		Progress: func(bc *batch.Context, item *batch.PromptItem) {
			status.Store(fmt.Sprintf("%s %s %s", model, logutil.Progress(bc.Index, bc.Total), item.Name()))
			if tr != nil {
				tr.Update(bc.Index, bc.Total, item.Name())
			}
		},
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := hotkey.Listen(gctx, cfg.AbortHotkey, func() {
			log.Printf("chatbench: abort hotkey pressed, stopping")
			cancel()
		})
		if err != nil {
			log.Printf("chatbench: abort hotkey disabled: %v", err)
		}
		return nil
	})
	if tr != nil {
		g.Go(func() error { return tr.Run(gctx) })
	}
	var manifest batch.Manifest
	g.Go(func() error {
		defer cancel()
		manifest = orch.Run(gctx, items)
		return nil
	})
	_ = g.Wait()

	summary := notification.Summary(model, bc.Total, bc.Saved, bc.Degraded, bc.Failed, store.Dir())
	log.Printf("chatbench: done, %d timing entries in %s", len(manifest.Entries), manifest.Path)
	if cfg.TrayEnabled {
		notification.Show("chatbench finished", summary)
	}
	return nil
}
