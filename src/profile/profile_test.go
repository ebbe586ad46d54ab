package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbench/src/desktop"
)

func TestDefault(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	assert.Len(t, p.Models, 11)
	assert.Equal(t, "claude_3_5_sonnet", p.ModelName(0))
	assert.Equal(t, "o4_mini_preview", p.ModelName(10))
	assert.Equal(t, "llm11", p.ModelName(11))

	assert.True(t, p.TitleRegexp().MatchString("main.go - app - Visual Studio Code"))
	assert.True(t, p.DevToolsRegexp().MatchString("Herramientas de desarrollo - app"))
	assert.True(t, p.DialogTitleRegexp().MatchString("Visual Studio Code"))
	assert.Contains(t, p.Capture.Markers, "Do you want to save")
	assert.Equal(t, "/save", p.Chat.ExportCommand)
}

func TestButtonPatternsMatchLocalizedLabels(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	for _, label := range []string{"Don't Save", "&Don't Save", "No guardar"} {
		matched := false
		for _, re := range p.ButtonRegexps() {
			if re.MatchString(label) {
				matched = true
			}
		}
		assert.True(t, matched, label)
	}
}

func TestClickPoints(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)
	r := desktop.Rect{Left: 100, Top: 200, Right: 500, Bottom: 400}

	var got [][2]int
	for _, cp := range p.Dialog.ClickPoints {
		x, y := cp.In(r)
		got = append(got, [2]int{x, y})
	}
	assert.Equal(t, [][2]int{{380, 340}, {350, 300}, {380, 300}}, got)
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	override := `
target:
  executable: Cursor.exe
models: [a, b]
keymaps:
  windows:
    focus_chat: "^+i"
`
	require.NoError(t, os.WriteFile(path, []byte(override), 0644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Cursor.exe", p.Target.Executable)
	assert.Equal(t, ".*Visual Studio Code.*", p.Target.TitlePattern)
	assert.Equal(t, []string{"a", "b"}, p.Models)
	assert.Equal(t, "llm2", p.ModelName(2))

	km := p.Keymap("windows")
	assert.Equal(t, "^+i", km.FocusChat)
	assert.Equal(t, "^v", km.Paste)
}

func TestLoadRejectsBadPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dialog:\n  title_pattern: '('\n"), 0644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
