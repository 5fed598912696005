package health

import (
	"context"
	"runtime"
	"time"

	"fleet-backend/internal/cache"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Pinger is satisfied by *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthChecker struct {
	db          Pinger
	store       string
	redisWanted bool
	started     time.Time
}

type HealthStatus struct {
	Status   string          `json:"status"`
	Store    string          `json:"store"`
	Database ComponentHealth `json:"database"`
	Redis    ComponentHealth `json:"redis"`
}

type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"response_time_ms"`
}

type DetailedStatus struct {
	HealthStatus
	Uptime        string  `json:"uptime"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsed    uint64  `json:"memory_used_bytes"`
	DiskPercent   float64 `json:"disk_percent"`
}

// NewHealthChecker builds a checker. db is nil when running on the
// in-memory store; redisWanted marks Redis as expected to be up.
func NewHealthChecker(db Pinger, store string, redisWanted bool) *HealthChecker {
	return &HealthChecker{db: db, store: store, redisWanted: redisWanted, started: time.Now()}
}

// CheckBasic reports unhealthy only when the database is down. Redis is a
// cache, so its loss degrades the status instead.
func (h *HealthChecker) CheckBasic() HealthStatus {
	dbHealth := h.checkDatabase()
	redisHealth := h.checkRedis()

	status := "healthy"
	if dbHealth.Status == "unhealthy" {
		status = "unhealthy"
	} else if redisHealth.Status == "unhealthy" {
		status = "degraded"
	}

	return HealthStatus{
		Status:   status,
		Store:    h.store,
		Database: dbHealth,
		Redis:    redisHealth,
	}
}

// CheckDetailed adds host stats for the ops dashboard
func (h *HealthChecker) CheckDetailed() DetailedStatus {
	d := DetailedStatus{
		HealthStatus: h.CheckBasic(),
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		Goroutines:   runtime.NumGoroutine(),
	}

	if cpuPercents, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(cpuPercents) > 0 {
		d.CPUPercent = cpuPercents[0]
	}
	if memStats, err := mem.VirtualMemory(); err == nil {
		d.MemoryPercent = memStats.UsedPercent
		d.MemoryUsed = memStats.Used
	}
	if diskStats, err := disk.Usage("/"); err == nil {
		d.DiskPercent = diskStats.UsedPercent
	}

	return d
}

func (h *HealthChecker) checkDatabase() ComponentHealth {
	if h.db == nil {
		return ComponentHealth{Status: "disabled"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	err := h.db.Ping(ctx)
	responseTime := time.Since(start).Milliseconds()

	if err != nil {
		return ComponentHealth{
			Status:       "unhealthy",
			ResponseTime: responseTime,
		}
	}

	return ComponentHealth{
		Status:       "healthy",
		ResponseTime: responseTime,
	}
}

func (h *HealthChecker) checkRedis() ComponentHealth {
	if !h.redisWanted {
		return ComponentHealth{Status: "disabled"}
	}

	start := time.Now()
	ok := cache.IsHealthy()
	responseTime := time.Since(start).Milliseconds()

	if !ok {
		return ComponentHealth{Status: "unhealthy", ResponseTime: responseTime}
	}
	return ComponentHealth{Status: "healthy", ResponseTime: responseTime}
}
