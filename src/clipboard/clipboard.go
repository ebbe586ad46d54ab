package clipboard

import (
	"errors"
	"fmt"
	"sync"

	"golang.design/x/clipboard"
)

var (
	writeMu  sync.Mutex
	initOnce sync.Once
	initErr  error
)

// ErrUnavailable is returned when the OS clipboard could not be initialised.
var ErrUnavailable = errors.New("clipboard unavailable")

// ErrRestore marks a Scope whose snapshot could not be written back.
var ErrRestore = errors.New("restore clipboard")

const restoreAttempts = 3

// Board is a text clipboard.
type Board interface {
	Read() (string, error)
	Write(text string) error
}

// Init prepares the system clipboard. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		initErr = clipboard.Init()
	})
	if initErr != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, initErr)
	}
	return nil
}

// System is the process-wide OS clipboard.
type System struct{}

func NewSystem() (*System, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	return &System{}, nil
}

func (*System) Read() (string, error) {
	writeMu.Lock()
	defer writeMu.Unlock()
	return string(clipboard.Read(clipboard.FmtText)), nil
}

// Write performs a mutex-guarded clipboard write to prevent corruption under parallel writes.
func (*System) Write(text string) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

// Memory is an in-process Board.
type Memory struct {
	mu   sync.Mutex
	text string
	// FailWrites makes every Write fail when set.
	FailWrites error
	// WriteErr, when set, can fail individual writes by content.
	WriteErr func(text string) error
}

func NewMemory(initial string) *Memory {
	return &Memory{text: initial}
}

func (m *Memory) Read() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

func (m *Memory) Write(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	if m.WriteErr != nil {
		if err := m.WriteErr(text); err != nil {
			return err
		}
	}
	m.text = text
	return nil
}

// Scope snapshots b, runs fn and restores the snapshot on every exit path,
// panics included. The restore is retried; if it still fails the returned
// error matches ErrRestore, joined with fn's own error if there was one.
func Scope(b Board, fn func() error) (err error) {
	saved, readErr := b.Read()
	if readErr != nil {
		return fmt.Errorf("snapshot clipboard: %w", readErr)
	}
	defer func() {
		restoreErr := restore(b, saved)
		if r := recover(); r != nil {
			panic(r)
		}
		if restoreErr != nil {
			err = errors.Join(err, fmt.Errorf("%w: %v", ErrRestore, restoreErr))
		}
	}()
	return fn()
}

func restore(b Board, saved string) error {
	var err error
	for i := 0; i < restoreAttempts; i++ {
		if err = b.Write(saved); err == nil {
			return nil
		}
	}
	return err
}
