package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gate-monitor/internal/config"
	"gate-monitor/internal/domain/gate"
	"gate-monitor/internal/live"
	"gate-monitor/internal/service"
)

type Handler struct {
	gateService *service.GateService
	hub         *live.Hub
	config      *config.Config
	log         zerolog.Logger
}

func NewHandler(
	gateService *service.GateService,
	hub *live.Hub,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		gateService: gateService,
		hub:         hub,
		config:      cfg,
		log:         log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/observations", h.ingestObservation)
		public.GET("/events", h.listEvents)
	}

	r.GET("/ws/live", h.liveSocket)

	// Admin endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.DELETE("/events/:id", h.deleteEvent)
		protected.POST("/events/simulate", h.simulateEvent)
		protected.GET("/whitelist", h.listWhitelist)
		protected.POST("/whitelist", h.upsertWhitelist)
		protected.DELETE("/whitelist/:id", h.deleteWhitelist)
	}
}

// ingestObservation receives one raw detector reading. Malformed
// observations are dropped inside the tracker, so the adapter always
// gets a 202: a bad frame is a pipeline log line, not an API error.
func (h *Handler) ingestObservation(c *gin.Context) {
	var obs gate.RawObservation
	if err := c.ShouldBindJSON(&obs); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	// no timestamp default here: a reading without one is malformed and
	// the tracker drops it with a log line
	h.gateService.HandleObservation(c.Request.Context(), obs)
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

func (h *Handler) listEvents(c *gin.Context) {
	filter := gate.EventFilter{
		Vehicle:     strings.TrimSpace(c.Query("vehicle")),
		Role:        strings.TrimSpace(c.Query("role")),
		VehicleType: strings.TrimSpace(c.Query("vehicle_type")),
	}

	if status := c.Query("status"); status == gate.StatusIn || status == gate.StatusOut {
		filter.Status = status
	}
	if auth := c.Query("authorized"); auth != "" {
		value := strings.EqualFold(auth, "true")
		filter.Authorized = &value
	}
	if from, ok := parseDate(c.Query("date_from")); ok {
		filter.DateFrom = &from
	}
	if to, ok := parseDate(c.Query("date_to")); ok {
		// a bare date as upper bound means end of that day
		if to.Hour() == 0 && to.Minute() == 0 && to.Second() == 0 {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		filter.DateTo = &to
	}
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}

	events, err := h.gateService.ListEvents(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) deleteEvent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid event id"))
		return
	}

	if err := h.gateService.DeleteEvent(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) simulateEvent(c *gin.Context) {
	var body struct {
		VehicleNumber string `json:"vehicle_number"`
		Status        string `json:"status"`
		Confidence    int    `json:"confidence"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if body.Confidence == 0 {
		body.Confidence = 90
	}

	event, err := h.gateService.SimulateEvent(c.Request.Context(), body.VehicleNumber, strings.ToUpper(body.Status), body.Confidence)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(event))
}

func (h *Handler) listWhitelist(c *gin.Context) {
	entries, err := h.gateService.ListWhitelist(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(entries))
}

func (h *Handler) upsertWhitelist(c *gin.Context) {
	var body struct {
		VehicleNumber string `json:"vehicle_number"`
		AuthorizedAs  string `json:"authorized_as"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	entry, err := h.gateService.UpsertWhitelist(c.Request.Context(), body.VehicleNumber, body.AuthorizedAs)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(entry))
}

func (h *Handler) deleteWhitelist(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid whitelist id"))
		return
	}

	if err := h.gateService.DeleteWhitelist(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) liveSocket(c *gin.Context) {
	h.hub.HandleConnection(c.Writer, c.Request)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
