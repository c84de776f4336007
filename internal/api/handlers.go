package api

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/datastore"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/evidence"
	"github.com/tphakala/fallguard/internal/status"
)

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Coordinator accident.Snapshot `json:"coordinator"`
	Status      status.View       `json:"status"`
}

// EpisodeList is returned by GET /api/v1/episodes.
type EpisodeList struct {
	Episodes []accident.Episode `json:"episodes"`
	Total    int64              `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// HealthCheck handles GET /health
func (c *Controller) HealthCheck(ctx echo.Context) error {
	snap := c.coordinator.Snapshot()
	response := map[string]any{
		"status":         "healthy",
		"version":        c.Settings.Version,
		"build_date":     c.Settings.BuildDate,
		"timestamp":      c.clock().Format(time.RFC3339),
		"uptime_seconds": time.Since(c.startTime).Seconds(),
		"state":          snap.StateName,
		"audio_degraded": snap.AudioDegraded,
		"video_degraded": snap.VideoDegraded,
	}
	if snap.AudioDegraded || snap.VideoDegraded {
		response["status"] = "degraded"
	}

	switch {
	case c.ds == nil:
		response["database_status"] = "disabled"
	default:
		if _, err := c.ds.CountEpisodes(ctx.Request().Context(), datastore.ListOptions{}); err != nil {
			response["database_status"] = "disconnected"
			response["database_error"] = err.Error()
			response["status"] = "degraded"
		} else {
			response["database_status"] = "connected"
		}
	}

	system := map[string]any{}
	if vm, err := mem.VirtualMemory(); err == nil {
		system["memory_used_percent"] = vm.UsedPercent
		system["memory_total_mb"] = vm.Total / 1024 / 1024
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil { //nolint:gosec // pid fits in int32
		if info, err := proc.MemoryInfo(); err == nil {
			system["process_rss_mb"] = float64(info.RSS) / 1024 / 1024
		}
	}
	response["system"] = system

	return ctx.JSON(http.StatusOK, response)
}

// GetStatus handles GET /api/v1/status
func (c *Controller) GetStatus(ctx echo.Context) error {
	resp := StatusResponse{Coordinator: c.coordinator.Snapshot()}
	if c.status != nil {
		resp.Status = c.status.View()
	}
	return ctx.JSON(http.StatusOK, resp)
}

// ListEpisodes handles GET /api/v1/episodes?limit=&offset=&emergency=&since=
func (c *Controller) ListEpisodes(ctx echo.Context) error {
	if c.ds == nil {
		return c.HandleError(ctx, nil, "episode history is disabled", http.StatusServiceUnavailable)
	}

	opts, err := parseListOptions(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "invalid query parameters", http.StatusBadRequest)
	}

	key := ctx.QueryString()
	if cached, ok := c.episodeCache.Get(key); ok {
		return ctx.JSON(http.StatusOK, cached)
	}

	reqCtx := ctx.Request().Context()
	episodes, err := c.ds.ListEpisodes(reqCtx, opts)
	if err != nil {
		return c.HandleError(ctx, err, "failed to list episodes", http.StatusInternalServerError)
	}
	total, err := c.ds.CountEpisodes(reqCtx, opts)
	if err != nil {
		return c.HandleError(ctx, err, "failed to count episodes", http.StatusInternalServerError)
	}

	list := EpisodeList{Episodes: episodes, Total: total, Limit: opts.Limit, Offset: opts.Offset}
	c.episodeCache.SetDefault(key, list)
	return ctx.JSON(http.StatusOK, list)
}

// GetEpisode handles GET /api/v1/episodes/:id
func (c *Controller) GetEpisode(ctx echo.Context) error {
	if c.ds == nil {
		return c.HandleError(ctx, nil, "episode history is disabled", http.StatusServiceUnavailable)
	}
	ep, err := c.ds.GetEpisode(ctx.Request().Context(), ctx.Param("id"))
	if errors.IsNotFound(err) {
		return c.HandleError(ctx, err, "episode not found", http.StatusNotFound)
	}
	if err != nil {
		return c.HandleError(ctx, err, "failed to load episode", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, ep)
}

// PostAudio handles POST /api/v1/evidence/audio
func (c *Controller) PostAudio(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return c.HandleError(ctx, err, "failed to read body", http.StatusBadRequest)
	}
	score, err := evidence.DecodeAudio(body, c.clock())
	if err != nil {
		c.reject(accident.StreamAudio, evidence.RejectionReason(err))
		return c.HandleError(ctx, err, "invalid audio evidence", http.StatusBadRequest)
	}
	if !c.coordinator.SubmitAudio(score) {
		c.reject(accident.StreamAudio, evidence.ReasonDropped)
		return c.HandleError(ctx, nil, "audio queue is full", http.StatusTooManyRequests)
	}
	return ctx.NoContent(http.StatusAccepted)
}

// PostVideo handles POST /api/v1/evidence/video
func (c *Controller) PostVideo(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return c.HandleError(ctx, err, "failed to read body", http.StatusBadRequest)
	}
	frame, err := evidence.DecodeFrame(body, c.clock())
	if err != nil {
		c.reject(accident.StreamVideo, evidence.RejectionReason(err))
		return c.HandleError(ctx, err, "invalid video evidence", http.StatusBadRequest)
	}
	c.coordinator.SubmitFrame(frame)
	return ctx.NoContent(http.StatusAccepted)
}

// PostSourceStatus handles POST /api/v1/evidence/status
func (c *Controller) PostSourceStatus(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return c.HandleError(ctx, err, "failed to read body", http.StatusBadRequest)
	}
	ev, err := evidence.DecodeSource(body)
	if err != nil {
		c.reject("status", evidence.RejectionReason(err))
		return c.HandleError(ctx, err, "invalid source status", http.StatusBadRequest)
	}
	c.coordinator.ReportSource(ev)
	return ctx.NoContent(http.StatusAccepted)
}

func (c *Controller) reject(stream accident.Stream, reason string) {
	if c.metrics != nil {
		c.metrics.RecordEvidenceRejected(string(stream), reason)
	}
}

func parseListOptions(ctx echo.Context) (datastore.ListOptions, error) {
	opts := datastore.ListOptions{Limit: defaultPageSize}
	if v := ctx.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, errors.NewStd("limit must be a positive integer")
		}
		opts.Limit = min(n, maxPageSize)
	}
	if v := ctx.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errors.NewStd("offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	if v := ctx.QueryParam("emergency"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.NewStd("emergency must be true or false")
		}
		opts.EmergencyOnly = b
	}
	if v := ctx.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, errors.NewStd("since must be an RFC3339 timestamp")
		}
		opts.Since = t
	}
	return opts, nil
}
