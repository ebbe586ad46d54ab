package batch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbench/src/artifact"
	"chatbench/src/capture"
	"chatbench/src/config"
	"chatbench/src/desktop"
	"chatbench/src/desktop/desktoptest"
	"chatbench/src/dialog"
	"chatbench/src/focus"
	"chatbench/src/inject"
	"chatbench/src/locator"
	"chatbench/src/profile"
	"chatbench/src/recorder"
)

var sentAt = time.Date(2025, 5, 1, 14, 3, 7, 123_000_000, time.Local)

const model = "claude_3_5_sonnet"

type harness struct {
	fake *desktoptest.Fake
	main desktop.Handle
	bc   *Context
	opts Options
	dir  string
}

// newHarness wires the real components to a fake desktop whose chat answers
// every prompt with "response to: <prompt>".
func newHarness(t *testing.T) *harness {
	t.Helper()
	p, err := profile.Default()
	require.NoError(t, err)

	fake := desktoptest.New()
	main := fake.AddWindow(desktop.WindowInfo{
		PID:     7,
		Title:   "app - Visual Studio Code",
		Class:   "Chrome_WidgetWin_1",
		Visible: true,
		Rect:    desktop.Rect{Right: 1600, Bottom: 900},
	})
	fake.OnTap = answerPrompts

	dir := t.TempDir()
	clock := func() time.Time { return sentAt }
	store, err := artifact.NewStore(dir, model, artifact.WithClock(clock))
	require.NoError(t, err)

	km := fake.Keymap
	watcher := dialog.New(fake, fake, km, p,
		dialog.WithTimeout(0), dialog.WithPoll(0), dialog.WithSettle(0),
		dialog.WithMainWindow(func() desktop.Handle { return main }))

	return &harness{
		fake: fake,
		main: main,
		dir:  dir,
		bc: &Context{
			Model:    model,
			Recorder: recorder.New(dir, model, sentAt),
			Store:    store,
		},
		opts: Options{
			Locator:  locator.New(fake, fake, locator.WithInterval(time.Millisecond)),
			Focus:    focus.New(fake),
			Injector: inject.New(fake, fake, fake.Board, km, inject.WithSettle(0), inject.WithCharDelay(0)),
			Capturer: capture.New(fake, fake, fake.Board, km, p.Capture.Markers,
				capture.WithSettle(0), capture.WithDismisser(watcher)),
			Dialogs:  watcher,
			Keymap:   km,
			Criteria: locator.Criteria{Title: p.TitleRegexp(), DialogClass: p.Dialog.Class},
			Chat:     p.Chat,
			Settings: Settings{WaitMode: config.WaitModeFixed},
			Now:      clock,
		},
	}
}

func answerPrompts(f *desktoptest.Fake, chord string) {
	if chord != "enter" || len(f.Sent) == 0 {
		return
	}
	if last := f.Sent[len(f.Sent)-1]; last != "/save" {
		f.Document = "response to: " + last
	}
}

// closePromptsSave opens the unsaved-export dialog whenever the document is
// closed.
func closePromptsSave(main desktop.Handle) func(*desktoptest.Fake, string) {
	return func(f *desktoptest.Fake, chord string) {
		answerPrompts(f, chord)
		if chord == "ctrl+w" {
			f.AddDialog(main, "Visual Studio Code",
				desktoptest.Dialog{CloseOnChord: []string{"alt+n"}}, "Save", "Don't Save", "Cancel")
		}
	}
}

func (h *harness) run(t *testing.T, ctx context.Context, items ...PromptItem) Manifest {
	t.Helper()
	o, err := New(h.bc, h.opts)
	require.NoError(t, err)
	return o.Run(ctx, items)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func readManifest(t *testing.T, path string) []recorder.TimingEntry {
	t.Helper()
	var entries []recorder.TimingEntry
	require.NoError(t, json.Unmarshal([]byte(readFile(t, path)), &entries))
	return entries
}

func TestNewValidatesOptions(t *testing.T) {
	h := newHarness(t)

	_, err := New(nil, h.opts)
	assert.Error(t, err)

	opts := h.opts
	opts.Capturer = nil
	_, err = New(h.bc, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Capturer is required")
}

func TestRunSavesResponse(t *testing.T) {
	h := newHarness(t)
	h.fake.OnTap = closePromptsSave(h.main)

	m := h.run(t, context.Background(), PromptItem{SourcePath: filepath.Join("prompts", "auth1.spec.txt"), Content: "alpha"})

	require.Len(t, m.Items, 1)
	res := m.Items[0]
	require.Equal(t, Saved, res.Outcome, "err: %v", res.Err)
	assert.Equal(t, "normal", res.Class)
	assert.Equal(t, filepath.Join(h.dir, "auth1_response_claude_3_5_sonnet_20250501_140307.spec.txt"), res.Output)
	assert.Contains(t, readFile(t, res.Output), "alpha")

	// prompt committed after the workspace reference, then the export command
	require.Len(t, h.fake.Sent, 2)
	assert.True(t, strings.HasPrefix(h.fake.Sent[0], "#cypress-realworld-app"))
	assert.True(t, strings.HasSuffix(h.fake.Sent[0], "alpha"))
	assert.Equal(t, "/save", h.fake.Sent[1])

	// the save prompt raised by closing the export was dismissed
	assert.Equal(t, 0, h.fake.OpenDialogs())

	// the user's clipboard survives the run
	got, err := h.fake.Board.Read()
	require.NoError(t, err)
	assert.Equal(t, "", got)

	require.Equal(t, filepath.Join(h.dir, "timestamps_claude_3_5_sonnet_20250501.json"), m.Path)
	entries := readManifest(t, m.Path)
	require.Len(t, entries, 1)
	assert.Equal(t, "2025-05-01 14:03:07.123", entries[0].Timestamp)
	assert.Equal(t, res.Output, entries[0].OutputFile)
	assert.Equal(t, "auth1.spec.txt", entries[0].SourceFile)
	assert.Equal(t, 1, h.bc.Saved)
}

func TestRunDegradedCaptureWritesReviewNote(t *testing.T) {
	h := newHarness(t)
	h.fake.OnTap = nil

	m := h.run(t, context.Background(),
		PromptItem{SourcePath: "a.txt", Content: "one"},
		PromptItem{SourcePath: "b.txt", Content: "two"},
	)

	require.Len(t, m.Items, 2)
	for _, res := range m.Items {
		assert.Equal(t, Review, res.Outcome)
		assert.Equal(t, "empty", res.Class)
		assert.Contains(t, filepath.Base(res.Output), "_review_empty_"+model+"_")
		note := readFile(t, res.Output)
		assert.Contains(t, note, "Capture class: empty")
		assert.Contains(t, note, "Attempts: 3")
	}
	assert.Len(t, readManifest(t, m.Path), 2)
	assert.Equal(t, 2, h.bc.Degraded)
}

func TestRunReviewNoteCarriesSnapshot(t *testing.T) {
	h := newHarness(t)
	h.fake.OnTap = nil
	h.opts.Snapshot = func(hw desktop.Handle) ([]byte, error) {
		return desktop.Snapshot(h.fake, h.fake, hw)
	}

	m := h.run(t, context.Background(), PromptItem{SourcePath: "auth1.spec.txt", Content: "one"})

	require.Len(t, m.Items, 1)
	shot := filepath.Join(h.dir, "auth1_review_empty_claude_3_5_sonnet_20250501_140307.png")
	assert.FileExists(t, shot)
	assert.Contains(t, readFile(t, m.Items[0].Output), "Screenshot: "+filepath.Base(shot))
	// the main window's rectangle, not the whole desktop
	assert.Equal(t, []desktop.Rect{{Right: 1600, Bottom: 900}}, h.fake.Captures)
	// the snapshot is not a manifest entry
	assert.Len(t, readManifest(t, m.Path), 1)
}

func TestRunRecoversFromDialogDuringCapture(t *testing.T) {
	h := newHarness(t)
	saveDialog := "[Window Title]\nVisual Studio Code\n\nDo you want to save the changes?\n\n[Save] [Don't Save] [Cancel]"
	h.fake.OnTap = func(f *desktoptest.Fake, chord string) {
		answerPrompts(f, chord)
		if chord == "enter" && f.Sent[len(f.Sent)-1] == "/save" {
			f.AddDialog(h.main, "Visual Studio Code",
				desktoptest.Dialog{CloseOnChord: []string{"alt+n"}, Text: saveDialog}, "Save", "Don't Save", "Cancel")
		}
	}

	m := h.run(t, context.Background(), PromptItem{SourcePath: "auth2.txt", Content: "beta"})

	require.Len(t, m.Items, 1)
	res := m.Items[0]
	require.Equal(t, Saved, res.Outcome, "err: %v", res.Err)
	body := readFile(t, res.Output)
	assert.Contains(t, body, "beta")
	assert.NotContains(t, body, "Don't Save")
	assert.Equal(t, 0, h.fake.OpenDialogs())
}

type panicCapturer struct{ calls int }

func (p *panicCapturer) Capture(context.Context, desktop.Handle) (capture.Result, error) {
	p.calls++
	if p.calls == 1 {
		panic("boom")
	}
	return capture.Result{Text: "fine", Class: capture.Normal, Method: "stub", Attempts: 1}, nil
}

func TestRunContinuesAfterPanic(t *testing.T) {
	h := newHarness(t)
	h.opts.Capturer = &panicCapturer{}

	m := h.run(t, context.Background(),
		PromptItem{SourcePath: "a.txt", Content: "one"},
		PromptItem{SourcePath: "b.txt", Content: "two"},
	)

	require.Len(t, m.Items, 2)
	assert.Equal(t, Failed, m.Items[0].Outcome)
	assert.Contains(t, filepath.Base(m.Items[0].Output), "a_review_failed_")
	assert.Contains(t, readFile(t, m.Items[0].Output), "panic: boom")
	assert.Equal(t, Saved, m.Items[1].Outcome)
	assert.Equal(t, "fine", readFile(t, m.Items[1].Output))

	entries := readManifest(t, m.Path)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].SourceFile)
	assert.Equal(t, "b.txt", entries[1].SourceFile)
}

type panicDismisser struct{}

func (panicDismisser) Dismiss(context.Context) dialog.Result { panic("dialog gone") }

func TestRunPanicAfterRecordKeepsOneEntry(t *testing.T) {
	h := newHarness(t)
	h.opts.Dialogs = panicDismisser{}

	m := h.run(t, context.Background(), PromptItem{SourcePath: "a.txt", Content: "one"})

	require.Len(t, m.Items, 1)
	assert.Equal(t, Saved, m.Items[0].Outcome)
	assert.Equal(t, 0, h.bc.Failed)
	require.Len(t, readManifest(t, m.Path), 1)

	files, err := filepath.Glob(filepath.Join(h.dir, "a_*"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestRunReacquiresWindowClosedAfterFocus(t *testing.T) {
	h := newHarness(t)
	h.fake.OnTap = func(f *desktoptest.Fake, chord string) {
		if chord == "ctrl+alt+i" {
			f.Close(h.main)
		}
		answerPrompts(f, chord)
	}

	m := h.run(t, context.Background(), PromptItem{SourcePath: "a.txt", Content: "alpha"})

	require.Len(t, m.Items, 1)
	require.Equal(t, Saved, m.Items[0].Outcome, "err: %v", m.Items[0].Err)
	require.NotEmpty(t, h.fake.Sent)
	assert.True(t, strings.HasSuffix(h.fake.Sent[0], "alpha"))

	entries := readManifest(t, m.Path)
	require.Len(t, entries, 1)
	assert.Equal(t, "2025-05-01 14:03:07.123", entries[0].Timestamp)
}

func TestRunUnsentPromptHasNoSendTime(t *testing.T) {
	h := newHarness(t)
	h.fake.TapErr = func(chord string) error {
		if chord == "enter" {
			return errors.New("input desktop locked")
		}
		return nil
	}
	items := []PromptItem{{SourcePath: "a.txt", Content: "alpha"}}

	o, err := New(h.bc, h.opts)
	require.NoError(t, err)
	m := o.Run(context.Background(), items)

	require.Len(t, m.Items, 1)
	assert.Equal(t, Failed, m.Items[0].Outcome)
	assert.True(t, items[0].SentTimestamp.IsZero())
	assert.Empty(t, h.fake.Sent)
	assert.Contains(t, filepath.Base(m.Items[0].Output), "a_review_failed_")
}

func TestRunCancelledMidItem(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.fake.OnTap = func(f *desktoptest.Fake, chord string) {
		if chord == "enter" {
			cancel()
		}
	}

	m := h.run(t, ctx,
		PromptItem{SourcePath: "a.txt", Content: "one"},
		PromptItem{SourcePath: "b.txt", Content: "two"},
	)

	require.Len(t, m.Items, 1)
	assert.Equal(t, Failed, m.Items[0].Outcome)
	assert.True(t, errors.Is(m.Items[0].Err, context.Canceled))
	assert.Len(t, readManifest(t, m.Path), 1)
	require.Len(t, h.fake.Sent, 1)
	assert.True(t, strings.HasSuffix(h.fake.Sent[0], "one"))
}

func TestRunCancelledBeforeStartFlushesEmptyManifest(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := h.run(t, ctx, PromptItem{SourcePath: "a.txt", Content: "one"})

	assert.Empty(t, m.Items)
	assert.Equal(t, "[]\n", readFile(t, m.Path))
}

func TestRunWithoutWindowUsesGlobalInput(t *testing.T) {
	h := newHarness(t)
	h.fake.Close(h.main)

	m := h.run(t, context.Background(), PromptItem{SourcePath: "a.txt", Content: "one"})

	require.Len(t, m.Items, 1)
	assert.Equal(t, Saved, m.Items[0].Outcome, "err: %v", m.Items[0].Err)
	assert.Contains(t, readFile(t, m.Items[0].Output), "one")
}

func TestRunLaunchesMissingTarget(t *testing.T) {
	h := newHarness(t)
	h.fake.Close(h.main)
	h.fake.OnLaunch = func(f *desktoptest.Fake, exe string, args []string) int {
		f.AddWindow(desktop.WindowInfo{PID: 4242, Title: "ws - Visual Studio Code", Visible: true,
			Rect: desktop.Rect{Right: 800, Bottom: 600}})
		return 4242
	}
	h.opts.Launcher = h.fake
	h.opts.Settings.TargetExe = "Code.exe"
	h.opts.Settings.WorkspaceDir = "/work/app"

	m := h.run(t, context.Background(), PromptItem{SourcePath: "a.txt", Content: "one"})

	assert.Equal(t, [][]string{{"Code.exe", "/work/app"}}, h.fake.Launches)
	require.Len(t, m.Items, 1)
	assert.Equal(t, Saved, m.Items[0].Outcome)
}

func TestRunDoesNotLaunchRunningTarget(t *testing.T) {
	h := newHarness(t)
	h.opts.Launcher = h.fake
	h.opts.Settings.TargetExe = "Code.exe"

	h.run(t, context.Background(), PromptItem{SourcePath: "a.txt", Content: "one"})
	assert.Empty(t, h.fake.Launches)
}

type stubInstrument struct {
	installed []string
	fetchDir  string
}

func (s *stubInstrument) Install(_ context.Context, script string) error {
	s.installed = append(s.installed, script)
	return nil
}

func (s *stubInstrument) Fetch(_ context.Context, dir, model string, at time.Time) (string, error) {
	s.fetchDir = dir
	return filepath.Join(dir, "copilot_timings_"+model+"_"+at.Format("20060102_150405")+".json"), nil
}

func TestRunInstallsAndFetchesInstrumentation(t *testing.T) {
	h := newHarness(t)
	stub := &stubInstrument{}
	h.opts.Instrument = stub
	h.opts.Settings.Script = "window.getCopilotTimings = () => []"

	m := h.run(t, context.Background(), PromptItem{SourcePath: "a.txt", Content: "one"})

	assert.Equal(t, []string{"window.getCopilotTimings = () => []"}, stub.installed)
	assert.Equal(t, h.dir, stub.fetchDir)
	assert.Equal(t, filepath.Join(h.dir, "copilot_timings_claude_3_5_sonnet_20250501_140307.json"), m.TimingsPath)
}

func TestRunReadyModeStopsWaitingEarly(t *testing.T) {
	h := newHarness(t)
	probes := 0
	h.opts.Settings.WaitMode = config.WaitModeReady
	h.opts.Settings.ResponseWait = time.Hour
	h.opts.Settings.ReadyPoll = time.Millisecond
	h.opts.Ready = func(context.Context, desktop.Handle) (bool, error) {
		probes++
		return probes >= 3, nil
	}

	done := make(chan Manifest, 1)
	go func() {
		o, err := New(h.bc, h.opts)
		if err != nil {
			close(done)
			return
		}
		done <- o.Run(context.Background(), []PromptItem{{SourcePath: "a.txt", Content: "one"}})
	}()

	select {
	case m, ok := <-done:
		require.True(t, ok)
		require.Len(t, m.Items, 1)
		assert.Equal(t, Saved, m.Items[0].Outcome)
		assert.Equal(t, 3, probes)
	case <-time.After(10 * time.Second):
		t.Fatal("ready probe did not end the response wait")
	}
}

func TestRunReportsProgress(t *testing.T) {
	h := newHarness(t)
	var seen []string
	h.opts.Progress = func(bc *Context, item *PromptItem) {
		seen = append(seen, item.Name())
		assert.Equal(t, 2, bc.Total)
		assert.Equal(t, len(seen), bc.Index)
	}

	h.run(t, context.Background(),
		PromptItem{SourcePath: "a.txt", Content: "one"},
		PromptItem{SourcePath: "b.txt", Content: "two"},
	)
	assert.Equal(t, []string{"a.txt", "b.txt"}, seen)
}

type childWindows struct {
	desktop.Windows
	frames [][]desktop.Control
	i      int
}

func (c *childWindows) Children(desktop.Handle) ([]desktop.Control, error) {
	f := c.frames[c.i]
	if c.i < len(c.frames)-1 {
		c.i++
	}
	return f, nil
}

func TestControlReady(t *testing.T) {
	send := func(enabled bool) []desktop.Control {
		return []desktop.Control{
			{Text: "Attach", Enabled: true},
			{Text: "Send (Enter)", Enabled: enabled},
		}
	}
	re := regexp.MustCompile(`^(Send|Enviar)`)

	t.Run("busy then idle", func(t *testing.T) {
		w := &childWindows{frames: [][]desktop.Control{send(true), send(false), send(false), send(true)}}
		probe := ControlReady(w, re)
		var got []bool
		for range 4 {
			ok, err := probe(context.Background(), 1)
			require.NoError(t, err)
			got = append(got, ok)
		}
		assert.Equal(t, []bool{false, false, false, true}, got)
	})

	t.Run("never busy", func(t *testing.T) {
		w := &childWindows{frames: [][]desktop.Control{send(true)}}
		probe := ControlReady(w, re)
		for range 3 {
			ok, err := probe(context.Background(), 1)
			require.NoError(t, err)
			assert.False(t, ok)
		}
	})

	t.Run("no window", func(t *testing.T) {
		probe := ControlReady(&childWindows{}, re)
		ok, err := probe(context.Background(), 0)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestLoadPrompts(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"b.txt":      "second",
		"a.spec.txt": "first",
		"notes.md":   "ignored",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.txt"), 0755))

	items, err := LoadPrompts(dir, []string{"*.txt", "a*"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a.spec.txt", items[0].Name())
	assert.Equal(t, "first", items[0].Content)
	assert.Equal(t, "b.txt", items[1].Name())

	_, err = LoadPrompts(dir, []string{"["})
	assert.Error(t, err)
}
