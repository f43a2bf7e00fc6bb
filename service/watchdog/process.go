package watchdog

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
)

// Launcher starts and stops the supervised service
type Launcher interface {
	// Start launches the service and returns its process id
	Start(ctx context.Context) (int, error)

	// Stop terminates the process with the supplied id
	Stop(ctx context.Context, pid int) error
}

// Prober reports process liveness
type Prober interface {
	Alive(ctx context.Context, pid int) bool
}

// ProcessProber checks liveness with the OS process table
type ProcessProber struct{}

// Alive returns true when a process with pid exists
func (ProcessProber) Alive(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	return err == nil && exists
}
