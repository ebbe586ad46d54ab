package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
}

func (r *recorder) Tap(key string, mods ...string) error {
	if len(mods) == 0 {
		r.events = append(r.events, key)
		return nil
	}
	r.events = append(r.events, strings.Join(mods, "+")+"+"+key)
	return nil
}

func (r *recorder) Type(text string) error {
	r.events = append(r.events, "type:"+text)
	return nil
}

func TestParse(t *testing.T) {
	tests := []struct {
		seq  string
		want []string
	}{
		{"^v", []string{"ctrl+v"}},
		{"+^{END}", []string{"shift+ctrl+end"}},
		{"^%i", []string{"ctrl+alt+i"}},
		{"%{F4}", []string{"alt+f4"}},
		{"{RIGHT}{ENTER}", []string{"right", "enter"}},
		{"{LEFT 2}~", []string{"left", "left", "enter"}},
		{"/save~", []string{"type:/save", "enter"}},
		{"^(ac)", []string{"ctrl+a", "ctrl+c"}},
		{"{+}{{}{}}", []string{"type:+{}"}},
	}
	for _, tt := range tests {
		t.Run(tt.seq, func(t *testing.T) {
			var r recorder
			require.NoError(t, Send(&r, tt.seq))
			assert.Equal(t, tt.want, r.events)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, seq := range []string{"{ENTER", "^", "(a", "a)", "{NOPE}", "{TAB x}"} {
		t.Run(seq, func(t *testing.T) {
			_, err := Parse(seq)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	inputs := []string{
		"plain text",
		"if (a + b) { return ^x % 2 }",
		"~/#channel",
		"ünïcode {}",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			var r recorder
			require.NoError(t, Send(&r, Escape(in)))
			assert.Equal(t, []string{"type:" + in}, r.events)
		})
	}
}

func TestForOS(t *testing.T) {
	assert.Equal(t, "{RIGHT}{ENTER}", ForOS("windows").DialogNavigate)
	assert.Equal(t, "{LEFT}{LEFT}{ENTER}", ForOS("linux").DialogNavigate)
	assert.Equal(t, "{ENTER}", ForOS("darwin").DialogNavigate)
	assert.Equal(t, "#v", ForOS("darwin").Paste)

	for _, goos := range []string{"windows", "linux", "darwin"} {
		km := ForOS(goos)
		for _, seq := range []string{km.Paste, km.Copy, km.SelectToEnd, km.DialogNavigate, km.CloseWindow} {
			_, err := Parse(seq)
			assert.NoError(t, err, "%s: %q", goos, seq)
		}
	}
}

func TestMerge(t *testing.T) {
	km := ForOS("windows").Merge(Keymap{FocusChat: "^+i"})
	assert.Equal(t, "^+i", km.FocusChat)
	assert.Equal(t, "^v", km.Paste)
}
