package desktop

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

type psProcesses struct{}

// NewProcesses returns a gopsutil-backed process table.
func NewProcesses() Processes { return &psProcesses{} }

// FindByName returns the pids whose executable name equals name, ignoring case.
func (*psProcesses) FindByName(ctx context.Context, name string) ([]int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var pids []int
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.EqualFold(n, name) {
			pids = append(pids, int(p.Pid))
		}
	}
	return pids, nil
}
