// Package httpapi exposes the local HTTP surface the UI talks to: store
// snapshots to read, command endpoints to drive the session.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/voxmesh/roomclient/internal/session"
	"github.com/voxmesh/roomclient/internal/store"
)

type Controller struct {
	Session *session.Session
	Store   *store.Store
}

func SetupRouter(mode string, ctl *Controller) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/state", ctl.handleState)
	api.POST("/mic/enable", ctl.command("enable mic", ctl.Session.EnableMic))
	api.POST("/mic/disable", ctl.command("disable mic", ctl.Session.DisableMic))
	api.POST("/mic/mute", ctl.command("mute mic", ctl.Session.MuteMic))
	api.POST("/mic/unmute", ctl.command("unmute mic", ctl.Session.UnmuteMic))
	api.POST("/cam/enable", ctl.command("enable cam", ctl.Session.EnableCam))
	api.POST("/cam/disable", ctl.command("disable cam", ctl.Session.DisableCam))
	api.POST("/audio-only/enable", ctl.command("enable audio-only", ctl.Session.EnableAudioOnly))
	api.POST("/audio-only/disable", ctl.command("disable audio-only", ctl.Session.DisableAudioOnly))
	api.POST("/restart-ice", ctl.command("restart ice", ctl.Session.RestartICE))
	api.POST("/display-name", ctl.handleDisplayName)
	api.POST("/leave", ctl.command("leave", ctl.Session.Close))

	log.Info().Str("module", "httpapi").Str("mode", mode).Msg("router setup")
	return r
}

func (ctl *Controller) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.Store.Snapshot())
}

// command wraps a fire-and-forget session operation: the work is enqueued on
// the session worker, the UI gets 202 immediately.
func (ctl *Controller) command(name string, fn func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		log.Debug().Str("module", "httpapi").Str("command", name).Msg("command")
		fn()
		c.JSON(http.StatusAccepted, gin.H{"queued": name})
	}
}

type displayNameRequest struct {
	DisplayName string `json:"displayName"`
}

func (ctl *Controller) handleDisplayName(c *gin.Context) {
	var req displayNameRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DisplayName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid displayName"})
		return
	}
	ctl.Session.ChangeDisplayName(req.DisplayName)
	c.JSON(http.StatusAccepted, gin.H{"queued": "change display name"})
}
