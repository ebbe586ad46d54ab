// Package profile holds the strategy tables that differ between targets and
// locales: window and dialog patterns, capture markers, chat commands, the
// model registry and keymap overrides.
package profile

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"runtime"

	"gopkg.in/yaml.v3"

	"chatbench/src/desktop"
	"chatbench/src/keys"
)

//go:embed default.yaml
var defaultYAML []byte

type Target struct {
	Executable           string `yaml:"executable"`
	TitlePattern         string `yaml:"title_pattern"`
	DevToolsTitlePattern string `yaml:"devtools_title_pattern"`
	DevToolsClass        string `yaml:"devtools_class"`
}

// ClickPoint is a position inside a rectangle: a fraction of its size plus a
// pixel offset from its top-left corner.
type ClickPoint struct {
	FX float64 `yaml:"fx"`
	FY float64 `yaml:"fy"`
	DX int     `yaml:"dx"`
	DY int     `yaml:"dy"`
}

// In resolves p against r.
func (p ClickPoint) In(r desktop.Rect) (int, int) {
	x, y := r.At(p.FX, p.FY)
	return x + p.DX, y + p.DY
}

type Dialog struct {
	Class          string       `yaml:"class"`
	TitlePattern   string       `yaml:"title_pattern"`
	ButtonPatterns []string     `yaml:"button_patterns"`
	ClickPoints    []ClickPoint `yaml:"click_points"`
}

type Capture struct {
	Markers []string `yaml:"markers"`
}

type Chat struct {
	WorkspaceReference string `yaml:"workspace_reference"`
	ExportCommand      string `yaml:"export_command"`
	CharDelayMs        int    `yaml:"char_delay_ms"`
	ReadyControl       string `yaml:"ready_control_pattern"`
}

type Instrument struct {
	ToggleCommand   string `yaml:"toggle_command"`
	FetchExpression string `yaml:"fetch_expression"`
	ConsoleFocus    string `yaml:"console_focus"`
	ConsoleDelaySec int    `yaml:"console_delay_sec"`
}

type Profile struct {
	Target     Target                 `yaml:"target"`
	Dialog     Dialog                 `yaml:"dialog"`
	Capture    Capture                `yaml:"capture"`
	Chat       Chat                   `yaml:"chat"`
	Instrument Instrument             `yaml:"instrument"`
	Models     []string               `yaml:"models"`
	Keymaps    map[string]keys.Keymap `yaml:"keymaps"`

	titleRe        *regexp.Regexp
	devToolsRe     *regexp.Regexp
	dialogTitleRe  *regexp.Regexp
	readyRe        *regexp.Regexp
	buttonPatterns []*regexp.Regexp
}

// Default returns the built-in profile.
func Default() (*Profile, error) {
	return Load("")
}

// Load parses the built-in profile and, when path is non-empty, layers the
// YAML file at path on top of it. Lists in the override replace the default
// lists; scalar fields left out keep their default.
func Load(path string) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(defaultYAML, &p); err != nil {
		return nil, fmt.Errorf("parse built-in profile: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read profile %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse profile %s: %w", path, err)
		}
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) compile() error {
	var err error
	if p.titleRe, err = regexp.Compile(p.Target.TitlePattern); err != nil {
		return fmt.Errorf("target.title_pattern: %w", err)
	}
	if p.devToolsRe, err = regexp.Compile(p.Target.DevToolsTitlePattern); err != nil {
		return fmt.Errorf("target.devtools_title_pattern: %w", err)
	}
	if p.dialogTitleRe, err = regexp.Compile(p.Dialog.TitlePattern); err != nil {
		return fmt.Errorf("dialog.title_pattern: %w", err)
	}
	if p.readyRe, err = regexp.Compile(p.Chat.ReadyControl); err != nil {
		return fmt.Errorf("chat.ready_control_pattern: %w", err)
	}
	if len(p.Dialog.ButtonPatterns) == 0 {
		return fmt.Errorf("dialog.button_patterns: at least one pattern is required")
	}
	p.buttonPatterns = p.buttonPatterns[:0]
	for _, s := range p.Dialog.ButtonPatterns {
		re, err := regexp.Compile(s)
		if err != nil {
			return fmt.Errorf("dialog.button_patterns %q: %w", s, err)
		}
		p.buttonPatterns = append(p.buttonPatterns, re)
	}
	if len(p.Models) == 0 {
		return fmt.Errorf("models: registry is empty")
	}
	return nil
}

func (p *Profile) TitleRegexp() *regexp.Regexp { return p.titleRe }
func (p *Profile) DevToolsRegexp() *regexp.Regexp { return p.devToolsRe }
func (p *Profile) DialogTitleRegexp() *regexp.Regexp { return p.dialogTitleRe }
func (p *Profile) ReadyRegexp() *regexp.Regexp { return p.readyRe }
func (p *Profile) ButtonRegexps() []*regexp.Regexp { return p.buttonPatterns }

// ModelName maps a CLI index to a model name. Indices past the registry get
// a synthetic "llm<index>" name.
func (p *Profile) ModelName(index int) string {
	if index >= 0 && index < len(p.Models) {
		return p.Models[index]
	}
	return fmt.Sprintf("llm%d", index)
}

// Keymap returns the keymap for goos with the profile's overrides applied.
func (p *Profile) Keymap(goos string) keys.Keymap {
	return keys.ForOS(goos).Merge(p.Keymaps[goos])
}

// HostKeymap is Keymap for the running OS.
func (p *Profile) HostKeymap() keys.Keymap { return p.Keymap(runtime.GOOS) }
