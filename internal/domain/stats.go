package domain

import (
	"time"
)

// ContainerStats is a point-in-time resource snapshot for an agent container.
type ContainerStats struct {
	ContainerID      string    `json:"container_id"`
	CPUPercent       float64   `json:"cpu_percent"`
	MemoryUsageBytes uint64    `json:"memory_usage_bytes"`
	MemoryLimitBytes uint64    `json:"memory_limit_bytes"`
	MemoryPercent    float64   `json:"memory_percent"`
	PIDs             uint64    `json:"pids"`
	ReadAt           time.Time `json:"read_at"`
}
