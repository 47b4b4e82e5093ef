package api

import (
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 100
	defaultJobLimit     = 100
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status      string    `json:"status"`
	Version     string    `json:"version"`
	Servers     int       `json:"servers"`
	Online      int       `json:"online"`
	StartedAt   time.Time `json:"started_at"`
	Subscribers int       `json:"subscribers"`
}

// StatusResponse is the body of GET /api/servers/:id/status.
type StatusResponse struct {
	ID               string                 `json:"id"`
	Status           monitor.Status         `json:"status"`
	RetryCount       int                    `json:"retry_count"`
	NeedsCredentials bool                   `json:"needs_credentials"`
	NeedsManualRetry bool                   `json:"needs_manual_retry"`
	PendingSecret    *monitor.PendingSecret `json:"pending_secret,omitempty"`
	LastSeen         *time.Time             `json:"last_seen,omitempty"`
	NextMonitoring   time.Time              `json:"next_monitoring"`
	Paused           bool                   `json:"paused"`
	InFlight         bool                   `json:"in_flight"`
}

// DetailsResponse is the body of GET /api/servers/:id/details/:metric.
type DetailsResponse struct {
	ID        string           `json:"id"`
	Metric    metrics.Category `json:"metric"`
	Available bool             `json:"available"`
	Value     any              `json:"value,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// ConnectRequest is the optional body of POST /api/servers/:id/connect.
type ConnectRequest struct {
	Password string `json:"password"`
}

// JobsResponse is the body of GET /api/jobs.
type JobsResponse struct {
	Jobs  []monitor.Job    `json:"jobs"`
	Stats monitor.JobStats `json:"stats"`
}

// PoolResponse is the body of GET /api/connection-pool.
type PoolResponse struct {
	Connections []monitor.ConnectionSummary `json:"connections"`
	Connected   int                         `json:"connected"`
	Total       int                         `json:"total"`
}

// ConfigInfo is the effective configuration minus secrets.
type ConfigInfo struct {
	ConfigPath            string        `json:"config_path,omitempty"`
	SSHConfigPath         string        `json:"ssh_config_path"`
	Interval              time.Duration `json:"interval"`
	Tick                  time.Duration `json:"tick"`
	HistorySize           int           `json:"history_size"`
	JobHistory            int           `json:"job_history"`
	RetryThreshold        int           `json:"retry_threshold"`
	MaxAutoRetries        int           `json:"max_auto_retries"`
	ParallelCollection    bool          `json:"parallel_collection"`
	PingTargets           []string      `json:"ping_targets"`
	ConnectTimeout        time.Duration `json:"connect_timeout"`
	CommandTimeout        time.Duration `json:"command_timeout"`
	IdleTimeout           time.Duration `json:"idle_timeout"`
	StrictHostKeyChecking bool          `json:"strict_host_key_checking"`
	FallbackPasswordSet   bool          `json:"fallback_password_set"`
	IncludeLocal          bool          `json:"include_local"`
	Servers               int           `json:"servers"`
}

func (s *Server) health(c *gin.Context) {
	views := s.mon.Servers()
	online := 0
	for _, v := range views {
		if v.Status.Kind == monitor.StatusOnline {
			online++
		}
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Version:     s.opts.Version,
		Servers:     len(views),
		Online:      online,
		StartedAt:   s.started,
		Subscribers: s.mon.Events().Subscribers(),
	})
}

func (s *Server) listServers(c *gin.Context) {
	c.JSON(http.StatusOK, s.mon.Servers())
}

func (s *Server) getServer(c *gin.Context) {
	view, err := s.mon.Server(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) serverStatus(c *gin.Context) {
	v, err := s.mon.Server(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{
		ID:               v.ID,
		Status:           v.Status,
		RetryCount:       v.RetryCount,
		NeedsCredentials: v.NeedsCredentials,
		NeedsManualRetry: v.NeedsManualRetry,
		PendingSecret:    v.PendingSecret,
		LastSeen:         v.LastSeen,
		NextMonitoring:   v.NextMonitoring,
		Paused:           v.Paused,
		InFlight:         v.InFlight,
	})
}

func (s *Server) serverDetails(c *gin.Context) {
	cat, ok := metrics.ParseCategory(c.Param("metric"))
	if !ok {
		writeError(c, errors.New(errors.ErrNotFound,
			"Unknown metric "+strconv.Quote(c.Param("metric")),
			"Use one of: cpu, memory, disks, network, ports, ping, system"))
		return
	}

	id := c.Param("id")
	value, available, reason, err := s.mon.Details(id, cat)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, DetailsResponse{
		ID:        id,
		Metric:    cat,
		Available: available,
		Value:     value,
		Reason:    reason,
	})
}

func (s *Server) serverHistory(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultHistoryLimit)
	if !ok {
		return
	}
	snaps, err := s.mon.History(c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if snaps == nil {
		snaps = []*metrics.Snapshot{}
	}
	c.JSON(http.StatusOK, snaps)
}

func (s *Server) connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		badRequest(c, "Request body must be JSON like {\"password\": \"...\"}", "Send an empty body to retry without a password")
		return
	}

	view, err := s.mon.Connect(c.Request.Context(), c.Param("id"), req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) cancelSecret(c *gin.Context) {
	id := c.Param("id")
	cancelled, err := s.mon.CancelSecret(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "cancelled": cancelled})
}

func (s *Server) startMonitoring(c *gin.Context) {
	s.setMonitoring(c, s.mon.Resume)
}

func (s *Server) stopMonitoring(c *gin.Context) {
	s.setMonitoring(c, s.mon.Pause)
}

func (s *Server) setMonitoring(c *gin.Context, apply func(string) error) {
	id := c.Param("id")
	if err := apply(id); err != nil {
		writeError(c, err)
		return
	}
	view, err := s.mon.Server(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) listJobs(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultJobLimit)
	if !ok {
		return
	}
	filter := monitor.JobFilter{
		ServerID: c.Query("server"),
		Status:   monitor.JobStatus(c.Query("status")),
		Limit:    limit,
	}
	switch filter.Status {
	case "", monitor.JobRunning, monitor.JobCompleted, monitor.JobFailed, monitor.JobCancelled:
	default:
		badRequest(c, "Unknown job status "+strconv.Quote(string(filter.Status)),
			"Use one of: running, completed, failed, cancelled")
		return
	}

	jobs := s.mon.Jobs().List(filter)
	if jobs == nil {
		jobs = []monitor.Job{}
	}
	c.JSON(http.StatusOK, JobsResponse{Jobs: jobs, Stats: s.mon.Jobs().Stats()})
}

func (s *Server) clearJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"removed": s.mon.Jobs().Clear()})
}

func (s *Server) connectionStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.mon.PoolStats())
}

func (s *Server) connectionPool(c *gin.Context) {
	summaries := s.mon.ConnectionSummaries()
	connected := 0
	for _, cs := range summaries {
		if cs.Connected {
			connected++
		}
	}
	c.JSON(http.StatusOK, PoolResponse{
		Connections: summaries,
		Connected:   connected,
		Total:       len(summaries),
	})
}

func (s *Server) configInfo(c *gin.Context) {
	cfg := s.cfg
	c.JSON(http.StatusOK, ConfigInfo{
		ConfigPath:            s.opts.ConfigPath,
		SSHConfigPath:         cfg.SSH.ConfigPath,
		Interval:              cfg.Monitor.Interval,
		Tick:                  cfg.Monitor.Tick,
		HistorySize:           s.mon.HistoryCapacity(),
		JobHistory:            cfg.Monitor.JobHistory,
		RetryThreshold:        cfg.Monitor.RetryThreshold,
		MaxAutoRetries:        cfg.Monitor.MaxAutoRetries,
		ParallelCollection:    cfg.Monitor.ParallelCollection,
		PingTargets:           cfg.Monitor.PingTargets,
		ConnectTimeout:        cfg.SSH.ConnectTimeout,
		CommandTimeout:        cfg.SSH.CommandTimeout,
		IdleTimeout:           cfg.SSH.IdleTimeout,
		StrictHostKeyChecking: cfg.SSH.StrictHostKeyChecking,
		FallbackPasswordSet:   cfg.SSH.FallbackPassword != "",
		IncludeLocal:          cfg.Monitor.IncludeLocal,
		Servers:               len(s.mon.Servers()),
	})
}

// intQuery reads a positive integer query parameter. On a bad value it
// writes a 400 and returns false.
func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		badRequest(c, key+" must be a positive integer", "e.g. ?"+key+"=50")
		return 0, false
	}
	return n, true
}
