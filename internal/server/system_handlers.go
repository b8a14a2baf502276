package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mvalderrama/electrocaja/internal/auth"
	"github.com/mvalderrama/electrocaja/internal/database"
	"github.com/mvalderrama/electrocaja/internal/realtime"
	"github.com/mvalderrama/electrocaja/internal/scheduler"
)

// SystemHandlers handles system monitoring and operations endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	posDB       *database.DB
	cacheDB     *database.DB
	registry    *auth.SessionRegistry
	hub         *realtime.Hub
	sched       *scheduler.Scheduler

	autoCloseJob   scheduler.Job
	notifyDrainJob scheduler.Job
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	posDB *database.DB,
	cacheDB *database.DB,
	registry *auth.SessionRegistry,
	hub *realtime.Hub,
	sched *scheduler.Scheduler,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		posDB:       posDB,
		cacheDB:     cacheDB,
		registry:    registry,
		hub:         hub,
		sched:       sched,
	}
}

// SetJobs registers the job instances for manual triggering.
func (h *SystemHandlers) SetJobs(autoClose, notifyDrain scheduler.Job) {
	h.autoCloseJob = autoClose
	h.notifyDrainJob = notifyDrain
}

// RegisterRoutes registers the system routes. Admin only.
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Use(auth.RequireRole("admin"))

		r.Get("/status", h.HandleSystemStatus)
		r.Get("/database/stats", h.HandleDatabaseStats)
		r.Get("/disk", h.HandleDiskUsage)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/auto-close", h.HandleTriggerAutoClose)
			r.Post("/notify-drain", h.HandleTriggerNotifyDrain)
		})
	})
}

// HandleSystemStatus returns process and host health.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := h.getSystemStats()

	response := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startupTime).Seconds()),
		"cpu_percent":    cpuPct,
		"memory_percent": memPct,
		"active_users":   h.registry.ActiveUsers(),
		"ws_connections": h.hub.ConnCount(),
		"checked_at":     time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

type dbInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
}

// HandleDatabaseStats returns database file sizes.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	databases := []dbInfo{}
	totalSizeMB := 0.0

	for _, name := range []string{"pos.db", "cache.db"} {
		path := filepath.Join(h.dataDir, name)
		if info, err := os.Stat(path); err == nil {
			sizeMB := float64(info.Size()) / 1024 / 1024
			totalSizeMB += sizeMB
			databases = append(databases, dbInfo{Name: name, Path: path, SizeMB: sizeMB})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"databases":     databases,
		"total_size_mb": totalSizeMB,
		"last_checked":  time.Now().Format(time.RFC3339),
	})
}

// HandleDiskUsage returns disk usage of the data directory.
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data_dir_mb": h.getDirSize(h.dataDir),
	})
}

// HandleTriggerAutoClose runs the end-of-day sweep immediately.
func (h *SystemHandlers) HandleTriggerAutoClose(w http.ResponseWriter, r *http.Request) {
	h.triggerJob(w, h.autoCloseJob)
}

// HandleTriggerNotifyDrain drains the notification queue immediately.
func (h *SystemHandlers) HandleTriggerNotifyDrain(w http.ResponseWriter, r *http.Request) {
	h.triggerJob(w, h.notifyDrainJob)
}

func (h *SystemHandlers) triggerJob(w http.ResponseWriter, job scheduler.Job) {
	w.Header().Set("Content-Type", "application/json")
	if job == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "job not registered"})
		return
	}
	if err := h.sched.RunNow(job); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "completed", "job": job.Name()})
}

func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}
	return float64(totalSize) / 1024 / 1024
}

// getSystemStats samples CPU and RAM usage percentages. The CPU sample uses
// 100ms so status requests stay fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
