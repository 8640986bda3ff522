package health

import (
	"time"
)

// HealthStatus represents the overall health status of the server.
type HealthStatus string

const (
	// StatusHealthy indicates all metrics are within acceptable ranges.
	StatusHealthy HealthStatus = "healthy"
	// StatusWarning indicates some metrics are concerning but not critical.
	StatusWarning HealthStatus = "warning"
	// StatusCritical indicates immediate attention is required.
	StatusCritical HealthStatus = "critical"
	// StatusUnknown indicates health cannot be determined.
	StatusUnknown HealthStatus = "unknown"
)

// Thresholds defines the thresholds for health evaluation.
type Thresholds struct {
	// Disk thresholds (percentage used)
	DiskWarning  float64 // Default: 80%
	DiskCritical float64 // Default: 90%

	// Memory thresholds (percentage used)
	MemoryWarning  float64 // Default: 85%
	MemoryCritical float64 // Default: 95%

	// CPU thresholds (percentage used)
	CPUWarning  float64 // Default: 80%
	CPUCritical float64 // Default: 95%

	// Database thresholds
	ConnectionsWarning int           // Default: 80 open connections
	LatencyWarning     time.Duration // Default: 250ms ping
}

// DefaultThresholds returns the default health thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DiskWarning:        80.0,
		DiskCritical:       90.0,
		MemoryWarning:      85.0,
		MemoryCritical:     95.0,
		CPUWarning:         80.0,
		CPUCritical:        95.0,
		ConnectionsWarning: 80,
		LatencyWarning:     250 * time.Millisecond,
	}
}

// CheckResult contains the detailed health check result.
type CheckResult struct {
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message"`
	Issues    []Issue      `json:"issues,omitempty"`
	CheckedAt time.Time    `json:"checked_at"`
	Metrics   *Metrics     `json:"metrics,omitempty"`
}

// Issue represents a specific health issue.
type Issue struct {
	Component string       `json:"component"` // disk, memory, cpu, database
	Severity  HealthStatus `json:"severity"`
	Message   string       `json:"message"`
	Value     float64      `json:"value,omitempty"`
	Threshold float64      `json:"threshold,omitempty"`
}

// Checker evaluates server health based on metrics.
type Checker struct {
	thresholds Thresholds
}

// NewChecker creates a new health checker with the given thresholds.
func NewChecker(thresholds Thresholds) *Checker {
	return &Checker{thresholds: thresholds}
}

// NewCheckerWithDefaults creates a new health checker with default thresholds.
func NewCheckerWithDefaults() *Checker {
	return NewChecker(DefaultThresholds())
}

// EvaluateMetrics evaluates health based on current metrics.
func (c *Checker) EvaluateMetrics(m *Metrics) *CheckResult {
	result := &CheckResult{
		Status:    StatusHealthy,
		CheckedAt: time.Now(),
		Issues:    make([]Issue, 0),
		Metrics:   m,
	}

	if m == nil {
		result.Status = StatusUnknown
		result.Message = "No metrics available"
		return result
	}

	// Check disk usage
	if m.DiskUsage >= c.thresholds.DiskCritical {
		result.Issues = append(result.Issues, Issue{
			Component: "disk",
			Severity:  StatusCritical,
			Message:   "Disk space critically low",
			Value:     m.DiskUsage,
			Threshold: c.thresholds.DiskCritical,
		})
	} else if m.DiskUsage >= c.thresholds.DiskWarning {
		result.Issues = append(result.Issues, Issue{
			Component: "disk",
			Severity:  StatusWarning,
			Message:   "Disk space running low",
			Value:     m.DiskUsage,
			Threshold: c.thresholds.DiskWarning,
		})
	}

	// Check memory usage
	if m.MemoryUsage >= c.thresholds.MemoryCritical {
		result.Issues = append(result.Issues, Issue{
			Component: "memory",
			Severity:  StatusCritical,
			Message:   "Memory usage critically high",
			Value:     m.MemoryUsage,
			Threshold: c.thresholds.MemoryCritical,
		})
	} else if m.MemoryUsage >= c.thresholds.MemoryWarning {
		result.Issues = append(result.Issues, Issue{
			Component: "memory",
			Severity:  StatusWarning,
			Message:   "Memory usage high",
			Value:     m.MemoryUsage,
			Threshold: c.thresholds.MemoryWarning,
		})
	}

	// Check CPU usage
	if m.CPUUsage >= c.thresholds.CPUCritical {
		result.Issues = append(result.Issues, Issue{
			Component: "cpu",
			Severity:  StatusCritical,
			Message:   "CPU usage critically high",
			Value:     m.CPUUsage,
			Threshold: c.thresholds.CPUCritical,
		})
	} else if m.CPUUsage >= c.thresholds.CPUWarning {
		result.Issues = append(result.Issues, Issue{
			Component: "cpu",
			Severity:  StatusWarning,
			Message:   "CPU usage high",
			Value:     m.CPUUsage,
			Threshold: c.thresholds.CPUWarning,
		})
	}

	// Check the database
	if !m.DatabaseUp {
		result.Issues = append(result.Issues, Issue{
			Component: "database",
			Severity:  StatusCritical,
			Message:   "Database unreachable",
		})
	} else {
		if c.thresholds.ConnectionsWarning > 0 && m.DatabaseConnections >= c.thresholds.ConnectionsWarning {
			result.Issues = append(result.Issues, Issue{
				Component: "database",
				Severity:  StatusWarning,
				Message:   "Many open database connections",
				Value:     float64(m.DatabaseConnections),
				Threshold: float64(c.thresholds.ConnectionsWarning),
			})
		}
		if c.thresholds.LatencyWarning > 0 && m.DatabaseLatency >= c.thresholds.LatencyWarning {
			result.Issues = append(result.Issues, Issue{
				Component: "database",
				Severity:  StatusWarning,
				Message:   "Database responding slowly",
				Value:     float64(m.DatabaseLatency.Milliseconds()),
				Threshold: float64(c.thresholds.LatencyWarning.Milliseconds()),
			})
		}
	}

	// Determine overall status
	result.Status = c.determineOverallStatus(result.Issues)
	result.Message = c.generateMessage(result)

	return result
}

// determineOverallStatus determines the overall health status from issues.
func (c *Checker) determineOverallStatus(issues []Issue) HealthStatus {
	if len(issues) == 0 {
		return StatusHealthy
	}

	hasCritical := false
	hasWarning := false

	for _, issue := range issues {
		switch issue.Severity {
		case StatusCritical:
			hasCritical = true
		case StatusWarning:
			hasWarning = true
		}
	}

	if hasCritical {
		return StatusCritical
	}
	if hasWarning {
		return StatusWarning
	}
	return StatusHealthy
}

// generateMessage generates a human-readable status message.
func (c *Checker) generateMessage(result *CheckResult) string {
	switch result.Status {
	case StatusHealthy:
		return "All systems operational"
	case StatusWarning:
		return "Some metrics require attention"
	case StatusCritical:
		return "Critical issues detected"
	default:
		return "Health status unknown"
	}
}
