package desktop

import (
	"fmt"
	"os/exec"
)

type execLauncher struct{}

func NewLauncher() Launcher { return &execLauncher{} }

// Launch starts exe detached and returns its pid. The child is not waited on;
// the target outlives the batch.
func (*execLauncher) Launch(exe string, args ...string) (int, error) {
	cmd := exec.Command(exe, args...)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("launch %s: %w", exe, err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}
