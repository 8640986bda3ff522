// Package health reports the health of the delivery server and its database.
package health

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/socialhistoryservices/delivery/internal/db"
)

// Metrics contains host, process and database figures.
type Metrics struct {
	CPUUsage       float64 `json:"cpu_usage"`
	MemoryUsage    float64 `json:"memory_usage"`
	DiskUsage      float64 `json:"disk_usage"`
	DiskFreeBytes  int64   `json:"disk_free_bytes"`
	DiskTotalBytes int64   `json:"disk_total_bytes"`
	UptimeSeconds  int64   `json:"uptime_seconds"`
	Goroutines     int     `json:"goroutines"`

	DatabaseUp          bool          `json:"database_up"`
	DatabaseLatency     time.Duration `json:"database_latency_ns"`
	DatabaseConnections int           `json:"database_connections"`
	DatabaseSizeBytes   int64         `json:"database_size_bytes"`
	Desk                *db.DeskStats `json:"desk,omitempty"`
}

// Source is the database the collector probes.
type Source interface {
	Ping(ctx context.Context) error
	GetDeskStats(ctx context.Context) (*db.DeskStats, error)
}

// Collector collects system metrics.
type Collector struct {
	startTime time.Time
	source    Source
	diskPath  string
}

// NewCollector creates a new metrics collector. diskPath is the filesystem
// whose usage is reported; it defaults to the root.
func NewCollector(source Source, diskPath string) *Collector {
	if diskPath == "" {
		diskPath = "/"
		if runtime.GOOS == "windows" {
			diskPath = "C:\\"
		}
	}
	return &Collector{
		startTime: time.Now(),
		source:    source,
		diskPath:  diskPath,
	}
}

// Collect gathers all metrics. Host figures that cannot be read stay zero.
func (c *Collector) Collect(ctx context.Context) (*Metrics, error) {
	m := &Metrics{
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}

	// CPU usage since the previous call
	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err == nil && len(cpuPercent) > 0 {
		m.CPUUsage = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil {
		m.MemoryUsage = memStat.UsedPercent
	}

	diskStat, err := disk.UsageWithContext(ctx, c.diskPath)
	if err == nil {
		m.DiskUsage = diskStat.UsedPercent
		m.DiskFreeBytes = int64(diskStat.Free)
		m.DiskTotalBytes = int64(diskStat.Total)
	}

	if c.source == nil {
		return m, nil
	}

	start := time.Now()
	if err := c.source.Ping(ctx); err != nil {
		return m, nil
	}
	m.DatabaseUp = true
	m.DatabaseLatency = time.Since(start)

	stats, err := c.source.GetDeskStats(ctx)
	if err != nil {
		return m, err
	}
	m.DatabaseConnections = stats.DatabaseConnections
	m.DatabaseSizeBytes = stats.DatabaseSizeBytes
	m.Desk = stats

	return m, nil
}

// GetOSInfo returns operating system information.
func GetOSInfo() map[string]string {
	hostname, _ := os.Hostname()
	return map[string]string{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"hostname":   hostname,
		"go_version": runtime.Version(),
	}
}
