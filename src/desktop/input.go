package desktop

import (
	"fmt"

	"github.com/go-vgo/robotgo"
)

type robotInput struct{}

// NewInput returns robotgo-backed input synthesis.
func NewInput() Input { return &robotInput{} }

func (*robotInput) Tap(key string, mods ...string) error {
	args := make([]interface{}, 0, len(mods))
	for _, m := range mods {
		args = append(args, m)
	}
	if err := robotgo.KeyTap(key, args...); err != nil {
		return fmt.Errorf("key tap %q: %w", key, err)
	}
	return nil
}

func (*robotInput) Type(text string) error {
	robotgo.TypeStr(text)
	return nil
}

func (*robotInput) Click(x, y int) error {
	robotgo.Move(x, y)
	robotgo.Click("left", false)
	return nil
}
