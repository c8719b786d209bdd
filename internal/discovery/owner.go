package discovery

import (
	"context"
	"fmt"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// Owner describes the local process listening on a port
type Owner struct {
	PID  int32
	Name string
}

// ListenerOwner finds the process with a LISTEN socket on port. Name is empty
// when the process cannot be inspected.
func ListenerOwner(ctx context.Context, port int) (Owner, error) {
	conns, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return Owner{}, fmt.Errorf("failed to list listening sockets: %w", err)
	}

	for _, c := range conns {
		if c.Status != "LISTEN" || int(c.Laddr.Port) != port || c.Pid == 0 {
			continue
		}
		owner := Owner{PID: c.Pid}
		if p, err := process.NewProcess(c.Pid); err == nil {
			owner.Name, _ = p.NameWithContext(ctx)
		}
		return owner, nil
	}
	return Owner{}, fmt.Errorf("no process listening on port %d", port)
}
