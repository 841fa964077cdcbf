package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pilgrimsafe/tracker/internal/dispatcher"
	"github.com/pilgrimsafe/tracker/internal/hint"
	"github.com/pilgrimsafe/tracker/internal/mapscreen"
	"github.com/pilgrimsafe/tracker/pkg/core"
)

type command string

const (
	commandRecenter    command = mapscreen.CmdRecenter
	commandFocusGroup  command = mapscreen.CmdFocusGroup
	commandNearestHelp command = mapscreen.CmdNearestHelp
	commandGroups      command = mapscreen.CmdBackToGroups
)

type handler struct {
	deps Deps
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Summary          any                    `json:"summary"`
	HelpCenters      []core.HelpCenter      `json:"helpCenters"`
	EmergencyNumbers []core.EmergencyNumber `json:"emergencyNumbers"`
}

// HintRequest is the body of POST /hints.
type HintRequest struct {
	ID    string   `json:"id"`
	Lat   *float64 `json:"lat" binding:"required"`
	Lng   *float64 `json:"lng" binding:"required"`
	Label string   `json:"label"`
}

// StatusRequest is the body of PUT /members/:id/status.
type StatusRequest struct {
	Status core.MemberStatus `json:"status" binding:"required,oneof=safe warning danger"`
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) status(c *gin.Context) {
	summary, err := h.request(c, dispatcher.Event{Command: mapscreen.CmdStatus})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{
		Summary:          summary,
		HelpCenters:      h.deps.HelpCenters,
		EmergencyNumbers: h.deps.EmergencyNumbers,
	})
}

func (h *handler) postHint(c *gin.Context) {
	var req HintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accepted, err := h.deps.Hints.Publish(core.CenterHint{
		ID:       req.ID,
		Position: core.LatLng{Lat: *req.Lat, Lng: *req.Lng},
		Label:    req.Label,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": accepted.ID})
}

func (h *handler) action(cmd command) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.respond(c, dispatcher.Event{Command: string(cmd)})
	}
}

func (h *handler) helpdeskTarget(c *gin.Context) {
	id := c.Param("id")
	for _, hc := range h.deps.HelpCenters {
		if hc.ID == id {
			h.respond(c, dispatcher.Event{Command: mapscreen.CmdHelpdeskTarget, Payload: hc})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown help center"})
}

func (h *handler) selectMember(c *gin.Context) {
	h.respond(c, dispatcher.Event{Command: mapscreen.CmdSelectMember, Args: []string{c.Param("id")}})
}

func (h *handler) deselect(c *gin.Context) {
	h.respond(c, dispatcher.Event{Command: mapscreen.CmdDeselect})
}

func (h *handler) setMemberStatus(c *gin.Context) {
	if h.deps.Members == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "member updates not available"})
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.deps.Members.SetStatus(c.Param("id"), req.Status); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respond runs e on the loop and writes its summary.
func (h *handler) respond(c *gin.Context, e dispatcher.Event) {
	summary, err := h.request(c, e)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handler) request(c *gin.Context, e dispatcher.Event) (any, error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deps.RequestTimeout)
	defer cancel()
	return h.deps.Loop.Request(ctx, e)
}

// fail maps domain errors to status codes.
func (h *handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrInvalidPosition):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrUnknownMember):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrLocationUnknown), errors.Is(err, core.ErrNoCandidates):
		status = http.StatusConflict
	case errors.Is(err, hint.ErrBusFull), errors.Is(err, hint.ErrBusClosed), errors.Is(err, dispatcher.ErrInboxFull),
		errors.Is(err, dispatcher.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		h.deps.Logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
