// Package container provides Docker-backed access to agent containers.
package container

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/forepath/agentdock/internal/domain"
)

// StatsFetcher fetches a point-in-time resource snapshot for a container.
type StatsFetcher interface {
	GetStats(ctx context.Context, containerID string) (*domain.ContainerStats, error)
}

// DockerStatsClient implements StatsFetcher using the Docker API.
type DockerStatsClient struct {
	cli *client.Client
}

// NewDockerStatsClient creates a Docker-backed stats client.
func NewDockerStatsClient() (*DockerStatsClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	slog.Info("Docker stats client initialized")
	return &DockerStatsClient{cli: cli}, nil
}

// NewDockerStatsClientWith wraps an existing Docker client. Used when the
// process already holds a client for exec-based providers.
func NewDockerStatsClientWith(cli *client.Client) *DockerStatsClient {
	return &DockerStatsClient{cli: cli}
}

// Client returns the underlying Docker client.
func (c *DockerStatsClient) Client() *client.Client {
	return c.cli
}

// GetStats fetches one non-streaming stats sample for a container.
// The daemon includes a pre-CPU sample in non-streaming mode, which is
// what makes the CPU percentage computable from a single call.
func (c *DockerStatsClient) GetStats(ctx context.Context, containerID string) (*domain.ContainerStats, error) {
	resp, err := c.cli.ContainerStats(ctx, containerID, false)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("container %s not found: %w", containerID, err)
		}
		return nil, fmt.Errorf("fetch stats for container %s: %w", containerID, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("Failed to close stats body", "error", closeErr, "container_id", containerID)
		}
	}()

	var raw container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode stats for container %s: %w", containerID, err)
	}

	stats := &domain.ContainerStats{
		ContainerID:      containerID,
		CPUPercent:       cpuPercent(&raw),
		MemoryUsageBytes: memoryUsage(&raw),
		MemoryLimitBytes: raw.MemoryStats.Limit,
		PIDs:             raw.PidsStats.Current,
		ReadAt:           time.Now(),
	}
	if stats.MemoryLimitBytes > 0 {
		stats.MemoryPercent = float64(stats.MemoryUsageBytes) / float64(stats.MemoryLimitBytes) * 100.0
	}
	return stats, nil
}

// cpuPercent mirrors the docker CLI calculation: delta of container CPU
// usage over delta of system usage, scaled by online CPUs.
func cpuPercent(raw *container.StatsResponse) float64 {
	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage) - float64(raw.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(raw.CPUStats.SystemUsage) - float64(raw.PreCPUStats.SystemUsage)
	if cpuDelta <= 0 || systemDelta <= 0 {
		return 0
	}

	onlineCPUs := float64(raw.CPUStats.OnlineCPUs)
	if onlineCPUs == 0 {
		onlineCPUs = float64(len(raw.CPUStats.CPUUsage.PercpuUsage))
	}
	if onlineCPUs == 0 {
		return 0
	}
	return cpuDelta / systemDelta * onlineCPUs * 100.0
}

// memoryUsage subtracts the page cache the way docker stats does on
// cgroup v1; cgroup v2 reports inactive_file instead.
func memoryUsage(raw *container.StatsResponse) uint64 {
	usage := raw.MemoryStats.Usage
	if cache, ok := raw.MemoryStats.Stats["total_inactive_file"]; ok && cache < usage {
		return usage - cache
	}
	if cache, ok := raw.MemoryStats.Stats["inactive_file"]; ok && cache < usage {
		return usage - cache
	}
	return usage
}
