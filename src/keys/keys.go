// Package keys parses the compact key-sequence notation used throughout the
// profile tables and turns it into taps and typed text.
//
// Notation:
//
//	^ ctrl   + shift   % alt   # cmd/win   ~ enter
//	{NAME}       named key, e.g. {ENTER} {TAB} {F4} {HOME}
//	{NAME n}     named key repeated n times
//	{x}          the literal character x, e.g. {+} {{} {}}
//	(...)        modifiers before a group apply to every key inside it
//
// Any other character is typed literally.
package keys

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var ErrSyntax = errors.New("invalid key sequence")

// Stroke is one parsed unit: either a key tap with modifiers or literal text.
type Stroke struct {
	Key  string
	Mods []string
	Text string
}

// Tapper receives the parsed strokes. desktop.Input satisfies it.
type Tapper interface {
	Tap(key string, mods ...string) error
	Type(text string) error
}

var modifiers = map[byte]string{
	'^': "ctrl",
	'+': "shift",
	'%': "alt",
	'#': "cmd",
}

var namedKeys = map[string]string{
	"ENTER":     "enter",
	"TAB":       "tab",
	"ESC":       "esc",
	"ESCAPE":    "esc",
	"SPACE":     "space",
	"BACKSPACE": "backspace",
	"BS":        "backspace",
	"DELETE":    "delete",
	"DEL":       "delete",
	"HOME":      "home",
	"END":       "end",
	"LEFT":      "left",
	"RIGHT":     "right",
	"UP":        "up",
	"DOWN":      "down",
	"PGUP":      "pageup",
	"PGDN":      "pagedown",
	"INSERT":    "insert",
}

func lookupKey(name string) (string, bool) {
	upper := strings.ToUpper(name)
	if k, ok := namedKeys[upper]; ok {
		return k, true
	}
	if len(upper) >= 2 && upper[0] == 'F' {
		if n, err := strconv.Atoi(upper[1:]); err == nil && n >= 1 && n <= 24 {
			return strings.ToLower(upper), true
		}
	}
	return "", false
}

// Parse converts a sequence into strokes.
func Parse(seq string) ([]Stroke, error) {
	p := parser{src: seq}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.out, nil
}

type parser struct {
	src string
	pos int
	out []Stroke
}

func (p *parser) run() error {
	var mods []string
	inGroup := false
	var groupMods []string

	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if m, ok := modifiers[c]; ok {
			mods = append(mods, m)
			p.pos++
			continue
		}

		switch c {
		case '(':
			if inGroup {
				return fmt.Errorf("%w: nested group at %d", ErrSyntax, p.pos)
			}
			inGroup = true
			groupMods = mods
			mods = nil
			p.pos++
			continue
		case ')':
			if !inGroup {
				return fmt.Errorf("%w: unbalanced ')' at %d", ErrSyntax, p.pos)
			}
			inGroup = false
			groupMods = nil
			mods = nil
			p.pos++
			continue
		}

		active := append(append([]string(nil), groupMods...), mods...)
		mods = nil

		switch c {
		case '~':
			p.emitKey("enter", active, 1)
			p.pos++
		case '{':
			key, literal, count, err := p.brace()
			if err != nil {
				return err
			}
			if literal != "" {
				p.emitChar(literal, active)
			} else {
				p.emitKey(key, active, count)
			}
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			p.pos += size
			p.emitChar(string(r), active)
		}
	}

	if inGroup {
		return fmt.Errorf("%w: unterminated group", ErrSyntax)
	}
	if len(mods) > 0 {
		return fmt.Errorf("%w: dangling modifier", ErrSyntax)
	}
	return nil
}

// brace consumes a {...} token starting at p.pos.
func (p *parser) brace() (key, literal string, count int, err error) {
	start := p.pos
	rest := p.src[p.pos+1:]
	// {x} where x is a single rune, including '{' and '}'.
	if r, size := utf8.DecodeRuneInString(rest); size > 0 && len(rest) > size && rest[size] == '}' {
		if _, named := lookupKey(string(r)); !named {
			p.pos += 1 + size + 1
			return "", string(r), 1, nil
		}
	}
	end := strings.IndexByte(rest, '}')
	if end < 0 {
		return "", "", 0, fmt.Errorf("%w: unterminated '{' at %d", ErrSyntax, start)
	}
	body := rest[:end]
	p.pos += 1 + end + 1

	count = 1
	name := body
	if i := strings.IndexByte(body, ' '); i >= 0 {
		name = body[:i]
		n, convErr := strconv.Atoi(strings.TrimSpace(body[i+1:]))
		if convErr != nil || n < 0 {
			return "", "", 0, fmt.Errorf("%w: bad repeat count in {%s}", ErrSyntax, body)
		}
		count = n
	}
	k, ok := lookupKey(name)
	if !ok {
		if utf8.RuneCountInString(name) == 1 {
			return "", name, 1, nil
		}
		return "", "", 0, fmt.Errorf("%w: unknown key {%s}", ErrSyntax, name)
	}
	return k, "", count, nil
}

func (p *parser) emitKey(key string, mods []string, count int) {
	for i := 0; i < count; i++ {
		p.out = append(p.out, Stroke{Key: key, Mods: mods})
	}
}

func (p *parser) emitChar(ch string, mods []string) {
	if len(mods) > 0 {
		p.out = append(p.out, Stroke{Key: strings.ToLower(ch), Mods: mods})
		return
	}
	// Coalesce runs of plain characters into one Text stroke.
	if n := len(p.out); n > 0 && p.out[n-1].Key == "" && p.out[n-1].Text != "" {
		p.out[n-1].Text += ch
		return
	}
	p.out = append(p.out, Stroke{Text: ch})
}

const special = "{}+^%~()#"

// Escape makes text safe to pass through Parse: every character with a
// meaning in the notation is wrapped in braces.
func Escape(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(special, r) {
			b.WriteByte('{')
			b.WriteRune(r)
			b.WriteByte('}')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Send parses seq and delivers it to t.
func Send(t Tapper, seq string) error {
	strokes, err := Parse(seq)
	if err != nil {
		return err
	}
	return Play(t, strokes)
}

// Play delivers already parsed strokes.
func Play(t Tapper, strokes []Stroke) error {
	for _, s := range strokes {
		var err error
		if s.Key == "" {
			err = t.Type(s.Text)
		} else {
			err = t.Tap(s.Key, s.Mods...)
		}
		if err != nil {
			return fmt.Errorf("send %s: %w", s, err)
		}
	}
	return nil
}

func (s Stroke) String() string {
	if s.Key == "" {
		return strconv.Quote(s.Text)
	}
	if len(s.Mods) == 0 {
		return s.Key
	}
	return strings.Join(s.Mods, "+") + "+" + s.Key
}
