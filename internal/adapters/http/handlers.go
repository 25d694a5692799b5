package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dkeye/pushd/internal/app"
	"github.com/dkeye/pushd/internal/core"
	"github.com/dkeye/pushd/internal/domain"
	"github.com/gin-gonic/gin"
)

// Handlers expose the Manager to the playback engine, the library
// scanner and the admin UI.
type Handlers struct {
	Manager *app.Manager
}

type PlayRequest struct {
	ItemIDs            []string `json:"ItemIds" binding:"required,min=1,dive,required"`
	StartPositionTicks int64    `json:"StartPositionTicks" binding:"min=0"`
	PlayCommand        string   `json:"PlayCommand" binding:"omitempty,oneof=PlayNow PlayNext PlayLast"`
	ControllingUserID  string   `json:"ControllingUserId" binding:"max=36"`
}

type PlaystateRequest struct {
	SeekPositionTicks int64  `json:"SeekPositionTicks" binding:"min=0"`
	ControllingUserID string `json:"ControllingUserId" binding:"max=36"`
}

type GeneralCommandRequest struct {
	Name              string            `json:"Name" binding:"required,max=64"`
	ControllingUserID string            `json:"ControllingUserId" binding:"max=36"`
	Arguments         map[string]string `json:"Arguments"`
}

type PlaybackRequest struct {
	ItemID string `json:"ItemId" binding:"required"`
}

type UserDataRequest struct {
	UserID       string              `json:"UserId" binding:"required,max=36"`
	UserDataList []core.UserItemData `json:"UserDataList"`
}

func sessionID(c *gin.Context) domain.SessionID {
	return domain.SessionID(c.Param("id"))
}

// writeError maps delivery errors to status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrNoActiveConnection):
		status = http.StatusConflict
	case errors.Is(err, core.ErrCancelled):
		status = http.StatusGatewayTimeout
	case errors.Is(err, core.ErrDeliveryFailed):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.Manager.Sessions()})
}

func (h *Handlers) GetSession(c *gin.Context) {
	s, err := h.Manager.Session(sessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handlers) Play(c *gin.Context) {
	var req PlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := core.PlayCommand(req.PlayCommand)
	if cmd == "" {
		cmd = core.PlayNow
	}
	err := h.Manager.SendPlayCommand(c.Request.Context(), sessionID(c), core.PlayRequest{
		ItemIDs:            req.ItemIDs,
		StartPositionTicks: req.StartPositionTicks,
		PlayCommand:        cmd,
		ControllingUserID:  domain.UserID(req.ControllingUserID),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Playstate accepts an empty body.
func (h *Handlers) Playstate(c *gin.Context) {
	cmd := core.PlaystateCommand(c.Param("command"))
	if !cmd.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown playstate command"})
		return
	}
	var req PlaystateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	err := h.Manager.SendPlaystateCommand(c.Request.Context(), sessionID(c), core.PlaystateRequest{
		Command:           cmd,
		SeekPositionTicks: req.SeekPositionTicks,
		ControllingUserID: domain.UserID(req.ControllingUserID),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) GeneralCommand(c *gin.Context) {
	var req GeneralCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	err := h.Manager.SendGeneralCommand(c.Request.Context(), sessionID(c), core.GeneralCommand{
		Name:              req.Name,
		ControllingUserID: domain.UserID(req.ControllingUserID),
		Arguments:         req.Arguments,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) PlaybackStart(c *gin.Context) {
	h.playback(c, h.Manager.ReportPlaybackStart)
}

func (h *Handlers) PlaybackStopped(c *gin.Context) {
	h.playback(c, h.Manager.ReportPlaybackStopped)
}

type broadcastFunc func(ctx context.Context, id domain.SessionID, itemID string) (app.BroadcastResult, error)

func (h *Handlers) playback(c *gin.Context, report broadcastFunc) {
	var req PlaybackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := report(c.Request.Context(), sessionID(c), req.ItemID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) LibraryChanged(c *gin.Context) {
	var info core.LibraryUpdateInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Manager.BroadcastLibraryChanged(c.Request.Context(), info)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) UserDataChanged(c *gin.Context) {
	var req UserDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Manager.BroadcastUserDataChanged(c.Request.Context(), core.UserDataChangeInfo{
		UserID:       domain.UserID(req.UserID),
		UserDataList: req.UserDataList,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) RestartRequired(c *gin.Context) {
	var info core.SystemInfo
	if err := c.ShouldBindJSON(&info); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	info.HasPendingRestart = true
	res, err := h.Manager.BroadcastRestartRequired(c.Request.Context(), info)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
