// Package hotkey watches a global key combination that aborts the batch.
package hotkey

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Listen installs a global keyboard hook and calls onPress every time the
// combination (for example "Ctrl+Alt+Q") is fully held down. It blocks until
// ctx is done and then removes the hook.
func Listen(ctx context.Context, combo string, onPress func()) error {
	c, err := NewCombo(combo)
	if err != nil {
		return err
	}
	log.Printf("Hotkey: listening for %s", combo)

	events := gohook.Start()
	if events == nil {
		return fmt.Errorf("hotkey: keyboard hook unavailable")
	}
	defer gohook.End()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				log.Printf("Hotkey: event channel closed")
				return nil
			}
			switch ev.Kind {
			case gohook.KeyDown, gohook.KeyHold:
				if c.Press(ev.Rawcode) {
					log.Printf("Hotkey: %s pressed", combo)
					if onPress != nil {
						onPress()
					}
				}
			case gohook.KeyUp:
				c.Release(ev.Rawcode)
			}
		}
	}
}

type key struct {
	name     string
	rawcodes []uint16
	down     bool
}

// Combo tracks which keys of a combination are currently held.
type Combo struct {
	mu   sync.Mutex
	keys []key
}

func NewCombo(spec string) (*Combo, error) {
	names := parseHotkey(spec)
	if len(names) == 0 {
		return nil, fmt.Errorf("hotkey: empty combination %q", spec)
	}
	c := &Combo{}
	for _, name := range names {
		codes := keyNameToRawcodes(name)
		if len(codes) == 0 {
			return nil, fmt.Errorf("hotkey: unknown key %q in %q", name, spec)
		}
		c.keys = append(c.keys, key{name: name, rawcodes: codes})
	}
	return c, nil
}

// Press marks rawcode as held and reports whether the whole combination is
// now down. A completed combination resets so holding it fires once.
func (c *Combo) Press(rawcode uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.keys {
		if c.keys[i].matches(rawcode) {
			c.keys[i].down = true
		}
	}
	for _, k := range c.keys {
		if !k.down {
			return false
		}
	}
	for i := range c.keys {
		c.keys[i].down = false
	}
	return true
}

func (c *Combo) Release(rawcode uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.keys {
		if c.keys[i].matches(rawcode) {
			c.keys[i].down = false
		}
	}
}

func (k key) matches(rawcode uint16) bool {
	for _, rc := range k.rawcodes {
		if rc == rawcode {
			return true
		}
	}
	return false
}

// parseHotkey converts "Ctrl+Alt+q" to normalized key names.
func parseHotkey(spec string) []string {
	var names []string
	for _, part := range strings.Split(strings.ToLower(spec), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "control":
			part = "ctrl"
		case "win", "super", "meta":
			part = "cmd"
		}
		names = append(names, part)
	}
	return names
}

var namedRawcodes = map[string][]uint16{
	// left and right variants
	"ctrl":  {162, 163},
	"alt":   {164, 165},
	"shift": {160, 161},
	"cmd":   {91, 92},

	"space":     {32},
	"enter":     {13},
	"return":    {13},
	"esc":       {27},
	"escape":    {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"del":       {46},
	"insert":    {45},
	"ins":       {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pgup":      {33},
	"pagedown":  {34},
	"pgdn":      {34},
	"pause":     {19},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

// keyNameToRawcodes maps a key name to its Windows virtual key codes.
func keyNameToRawcodes(name string) []uint16 {
	name = strings.ToLower(strings.TrimSpace(name))
	if codes, ok := namedRawcodes[name]; ok {
		return codes
	}
	if len(name) == 1 {
		switch ch := name[0]; {
		case ch >= 'a' && ch <= 'z':
			return []uint16{uint16(ch-'a') + 65}
		case ch >= '0' && ch <= '9':
			return []uint16{uint16(ch-'0') + 48}
		}
	}
	var n int
	if _, err := fmt.Sscanf(name, "f%d", &n); err == nil && n >= 1 && n <= 24 && name == fmt.Sprintf("f%d", n) {
		return []uint16{uint16(111 + n)}
	}
	return nil
}
