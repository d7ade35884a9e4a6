package controllers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/nzbcore/gonzbd/internal/app"
)

// StatusController serves read-only JSON snapshots of engine state. It
// never mutates anything — the binary RPC server (§4.12) is the control
// plane.
type StatusController struct {
	App *app.Context
}

func (ctrl *StatusController) Healthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Version          string  `json:"version"`
	QueuedJobs       int     `json:"queued_jobs"`
	BytesPerSecond   float64 `json:"bytes_per_second"`
	DownloadPaused   bool    `json:"download_paused"`
	SpeedLimitBps    int64   `json:"speed_limit_bytes_per_second"`
	ConnectedServers int     `json:"connected_servers"`
}

func (ctrl *StatusController) Status(c *echo.Context) error {
	snap := ctrl.App.Queue.Snapshot()
	resp := statusResponse{
		Version:          "1.0.0",
		QueuedJobs:       len(snap),
		BytesPerSecond:   ctrl.App.Meter.CurrentBytesPerSecond(),
		SpeedLimitBps:    ctrl.App.Config.Speed.LimitBytesPerSecond,
		ConnectedServers: len(ctrl.App.Pool.Servers()),
	}
	return c.JSON(http.StatusOK, resp)
}

type jobView struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	Category        string `json:"category"`
	Priority        int    `json:"priority"`
	Size            int64  `json:"size"`
	RemainingSize   int64  `json:"remaining_size"`
	PausedSize      int64  `json:"paused_size"`
	FileCount       int    `json:"file_count"`
	PausedFileCount int    `json:"paused_file_count"`
	DeleteStatus    string `json:"delete_status,omitempty"`
}

func (ctrl *StatusController) Queue(c *echo.Context) error {
	snap := ctrl.App.Queue.Snapshot()
	out := make([]jobView, 0, len(snap))
	for _, j := range snap {
		out = append(out, jobView{
			ID: j.ID, DisplayName: j.DisplayName, Category: j.Category,
			Priority: j.Priority, Size: j.Size, RemainingSize: j.RemainingSize,
			PausedSize: j.PausedSize, FileCount: j.FileCount,
			PausedFileCount: j.PausedFileCount, DeleteStatus: string(j.DeleteStatus),
		})
	}
	return c.JSON(http.StatusOK, out)
}

type serverView struct {
	ID              string `json:"id"`
	Host            string `json:"host"`
	Level           int    `json:"level"`
	Active          bool   `json:"active"`
	MaxConnection   int    `json:"max_connection"`
	LeasedNow       int64  `json:"leased_now"`
	SuccessArticles int64  `json:"success_articles"`
	FailedArticles  int64  `json:"failed_articles"`
}

func (ctrl *StatusController) Servers(c *echo.Context) error {
	servers := ctrl.App.Pool.Servers()
	out := make([]serverView, 0, len(servers))
	for _, s := range servers {
		out = append(out, serverView{
			ID: s.ID, Host: s.Host, Level: s.Level, Active: s.Active,
			MaxConnection: s.MaxConnection, LeasedNow: s.LeasedNow,
			SuccessArticles: s.SuccessArticles, FailedArticles: s.FailedArticles,
		})
	}
	return c.JSON(http.StatusOK, out)
}
