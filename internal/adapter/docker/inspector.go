package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// tenantLabel is stamped on every stack container by the artifact
// builder.
const tenantLabel = "stackhost.tenant"

// Inspector reads container state and resource usage from the engine
// API.
type Inspector struct {
	cli *client.Client
}

var _ domain.StackInspector = (*Inspector)(nil)

// NewInspector connects to the engine at host, or the default socket
// when host is empty.
func NewInspector(host string) (*Inspector, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Inspector{cli: cli}, nil
}

func (i *Inspector) Close() error {
	return i.cli.Close()
}

// Stats returns one reading per container of the tenant's stack,
// including stopped containers (with zeroed usage).
func (i *Inspector) Stats(ctx context.Context, tenantName string) ([]domain.ContainerStat, error) {
	containers, err := i.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", tenantLabel+"="+tenantName)),
	})
	if err != nil {
		return nil, fmt.Errorf("listing containers for %s: %w", tenantName, err)
	}

	stats := make([]domain.ContainerStat, 0, len(containers))
	for _, c := range containers {
		stat := domain.ContainerStat{
			ContainerID: c.ID,
			Name:        containerName(c),
			State:       c.State,
		}
		if c.State == "running" {
			if err := i.fillUsage(ctx, &stat); err != nil {
				return nil, err
			}
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

func (i *Inspector) fillUsage(ctx context.Context, stat *domain.ContainerStat) error {
	resp, err := i.cli.ContainerStatsOneShot(ctx, stat.ContainerID)
	if err != nil {
		return fmt.Errorf("reading stats for %s: %w", stat.ContainerID, err)
	}
	defer resp.Body.Close()

	var raw container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("decoding stats for %s: %w", stat.ContainerID, err)
	}

	stat.CPUPercent = cpuPercent(raw)
	stat.MemoryBytes = raw.MemoryStats.Usage
	stat.MemoryLimit = raw.MemoryStats.Limit
	return nil
}

func containerName(c container.Summary) string {
	if len(c.Names) == 0 {
		return c.ID[:12]
	}
	return strings.TrimPrefix(c.Names[0], "/")
}

// cpuPercent computes usage the way the engine CLI does, from the delta
// against the precpu sample embedded in a one-shot response.
func cpuPercent(s container.StatsResponse) float64 {
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(s.CPUStats.SystemUsage) - float64(s.PreCPUStats.SystemUsage)
	if cpuDelta <= 0 || systemDelta <= 0 {
		return 0
	}
	online := float64(s.CPUStats.OnlineCPUs)
	if online == 0 {
		online = float64(len(s.CPUStats.CPUUsage.PercpuUsage))
	}
	return cpuDelta / systemDelta * online * 100.0
}
