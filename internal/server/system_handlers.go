package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/di"
	"github.com/quangtd/vnsentry/internal/scheduler"
	"github.com/quangtd/vnsentry/internal/version"
)

// SystemHandlers serves monitoring endpoints and manual job triggers.
type SystemHandlers struct {
	log       zerolog.Logger
	cfg       *config.Config
	container *di.Container
	jobs      map[string]scheduler.Job
	jobOrder  []string
	startTime time.Time
}

// DatabaseStatus is one database's health line in the status response.
type DatabaseStatus struct {
	Name      string  `json:"name"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	Healthy   bool    `json:"healthy"`
}

// SystemStatusResponse is the full status snapshot.
type SystemStatusResponse struct {
	Status        string           `json:"status"`
	Version       string           `json:"version"`
	GoVersion     string           `json:"go_version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Goroutines    int              `json:"goroutines"`
	CPUPercent    float64          `json:"cpu_percent"`
	MemoryPercent float64          `json:"memory_percent"`
	Databases     []DatabaseStatus `json:"databases"`
	Securities    int              `json:"securities"`
	Positions     int              `json:"positions"`
	Cash          float64          `json:"cash"`
	LatestSignals string           `json:"latest_signals,omitempty"`
}

// NewSystemHandlers creates the system handlers. jobs may be nil when
// no scheduler is attached.
func NewSystemHandlers(log zerolog.Logger, cfg *config.Config, container *di.Container, jobs *di.JobInstances) *SystemHandlers {
	h := &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		cfg:       cfg,
		container: container,
		jobs:      make(map[string]scheduler.Job),
		startTime: time.Now(),
	}
	if jobs != nil {
		for _, job := range jobs.All() {
			h.jobs[job.Name()] = job
			h.jobOrder = append(h.jobOrder, job.Name())
		}
	}
	return h
}

// RegisterRoutes registers the system routes.
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleStatus)
		r.Get("/jobs", h.HandleListJobs)
		r.Get("/database/stats", h.HandleDatabaseStats)
		r.Get("/disk", h.HandleDiskUsage)
		r.Post("/jobs/{name}", h.HandleTriggerJob)
		r.Post("/restore", h.HandleStageRestore)
	})
}

// HandleStatus returns process, host and pipeline health in one shot.
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := SystemStatusResponse{
		Status:        "healthy",
		Version:       version.Version,
		GoVersion:     runtime.Version(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}

	// 100ms sample keeps the endpoint fast enough for dashboard polling.
	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		resp.CPUPercent = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		resp.MemoryPercent = memStat.UsedPercent
	}

	for _, db := range h.container.Databases() {
		status := DatabaseStatus{Name: db.Name(), Healthy: true}
		if err := db.QuickCheck(ctx); err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Database failed quick check")
			status.Healthy = false
			resp.Status = "degraded"
		}
		if stats, err := db.GetStats(); err == nil {
			status.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			status.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
		}
		resp.Databases = append(resp.Databases, status)
	}

	if count, err := h.container.Securities.Count(); err == nil {
		resp.Securities = count
	}
	if book := h.container.Portfolio.Current(); book != nil {
		resp.Positions = len(book.Positions)
		resp.Cash = book.Cash
	}
	if latest, err := h.container.Signals.LatestDate(); err == nil && latest != nil {
		resp.LatestSignals = latest.Format("2006-01-02")
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleListJobs returns the registered background jobs.
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": h.jobOrder,
	})
}

// HandleTriggerJob runs a registered job in the background.
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "unknown job: " + name,
		})
		return
	}

	h.log.Info().Str("job", name).Msg("Job triggered manually")
	go func() {
		if err := job.Run(); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "triggered",
		"job":    name,
	})
}

// HandleDatabaseStats returns per-database size and page statistics.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	type dbStats struct {
		Name      string  `json:"name"`
		SizeMB    float64 `json:"size_mb"`
		WALSizeMB float64 `json:"wal_size_mb"`
		PageCount int64   `json:"page_count"`
		FreePages int64   `json:"free_pages"`
	}

	var entries []dbStats
	totalMB := 0.0
	for _, db := range h.container.Databases() {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to read database stats")
			continue
		}
		sizeMB := float64(stats.SizeBytes) / 1024 / 1024
		totalMB += sizeMB
		entries = append(entries, dbStats{
			Name:      db.Name(),
			SizeMB:    sizeMB,
			WALSizeMB: float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount: stats.PageCount,
			FreePages: stats.FreelistCount,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"databases":     entries,
		"total_size_mb": totalMB,
		"last_checked":  time.Now().Format(time.RFC3339),
	})
}

// HandleDiskUsage returns data directory and volume usage.
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	dataMB := h.dirSizeMB(h.cfg.DataDir)
	backupsMB := h.dirSizeMB(filepath.Join(h.cfg.DataDir, "backups"))

	resp := map[string]interface{}{
		// Backups live inside the data directory, so data_dir_mb includes them.
		"data_dir_mb": dataMB,
		"backups_mb":  backupsMB,
	}
	if usage, err := disk.Usage(h.cfg.DataDir); err == nil {
		resp["volume_used_percent"] = usage.UsedPercent
		resp["volume_free_gb"] = float64(usage.Free) / 1024 / 1024 / 1024
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleStageRestore stages a restore from a local backup set or an
// archive file. The swap happens on the next startup.
// POST /api/system/restore
func (h *SystemHandlers) HandleStageRestore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Set     string `json:"set"`     // daily set name, e.g. 2025-08-20
		Archive string `json:"archive"` // path to a downloaded .tar.gz
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
		return
	}

	var (
		staged int
		err    error
	)
	switch {
	case req.Set != "":
		setDir := filepath.Join(h.cfg.DataDir, "backups", "daily", filepath.Base(req.Set))
		staged, err = h.container.Restore.StageBackupSet(setDir)
	case req.Archive != "":
		staged, err = h.container.Restore.StageArchive(req.Archive)
	default:
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "set or archive required"})
		return
	}

	if err != nil {
		h.log.Error().Err(err).Msg("Failed to stage restore")
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":    "staged",
		"databases": staged,
		"note":      "restart the service to apply the restore",
	})
}

func (h *SystemHandlers) dirSizeMB(dirPath string) float64 {
	var total int64
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0
	}
	return float64(total) / 1024 / 1024
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
