package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mentor-meet-api/internal/middleware"
	"github.com/noah-isme/mentor-meet-api/internal/models"
	"github.com/noah-isme/mentor-meet-api/internal/service"
	appErrors "github.com/noah-isme/mentor-meet-api/pkg/errors"
	"github.com/noah-isme/mentor-meet-api/pkg/export"
	"github.com/noah-isme/mentor-meet-api/pkg/response"
)

// MeetingHandler wires HTTP endpoints to meeting scheduling and the registry.
type MeetingHandler struct {
	scheduling *service.SchedulingService
	meetings   *service.MeetingService
	metrics    *service.MetricsService
	lookahead  time.Duration
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
}

// NewMeetingHandler creates a new handler.
func NewMeetingHandler(scheduling *service.SchedulingService, meetings *service.MeetingService, metrics *service.MetricsService, lookahead time.Duration) *MeetingHandler {
	return &MeetingHandler{
		scheduling: scheduling,
		meetings:   meetings,
		metrics:    metrics,
		lookahead:  lookahead,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
	}
}

// Schedule godoc
// @Summary Schedule a meeting
// @Description Create a calendar event and persist the meeting
// @Tags Meetings
// @Accept json
// @Produce json
// @Param payload body service.ScheduleMeetingRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /meetings [post]
func (h *MeetingHandler) Schedule(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ScheduleMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule payload"))
		return
	}

	result, err := h.scheduling.Schedule(c.Request.Context(), claims.UserID, req)
	if err != nil {
		if h.metrics != nil {
			h.metrics.ObserveScheduling("failure")
		}
		response.Error(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ObserveScheduling("success")
	}
	response.Created(c, result)
}

// ListMine godoc
// @Summary List meetings for current user
// @Description Meetings the user created or participates in
// @Tags Meetings
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /meetings [get]
func (h *MeetingHandler) ListMine(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	meetings, err := h.meetings.ListForUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, meetings, nil)
}

// Upcoming godoc
// @Summary List upcoming meetings
// @Description Scheduled meetings starting within the lookahead window
// @Tags Meetings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /meetings/upcoming [get]
func (h *MeetingHandler) Upcoming(c *gin.Context) {
	meetings, err := h.meetings.FindUpcoming(c.Request.Context(), time.Now().UTC(), h.lookahead)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, meetings, nil)
}

// Get godoc
// @Summary Get a meeting
// @Tags Meetings
// @Produce json
// @Param id path string true "Meeting ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /meetings/{id} [get]
func (h *MeetingHandler) Get(c *gin.Context) {
	meeting, err := h.meetings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, meeting, nil)
}

// AddParticipants godoc
// @Summary Add participants to a meeting
// @Description Append participant entries while the meeting is SCHEDULED
// @Tags Meetings
// @Accept json
// @Produce json
// @Param id path string true "Meeting ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /meetings/{id}/participants [post]
func (h *MeetingHandler) AddParticipants(c *gin.Context) {
	var payload struct {
		Participants []service.ParticipantInput `json:"participants" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid participants payload"))
		return
	}

	meeting, err := h.meetings.AddParticipants(c.Request.Context(), c.Param("id"), payload.Participants)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, meeting, nil)
}

// Transition godoc
// @Summary Advance meeting status
// @Description Move the meeting along its lifecycle graph
// @Tags Meetings
// @Accept json
// @Produce json
// @Param id path string true "Meeting ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /meetings/{id}/status [post]
func (h *MeetingHandler) Transition(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Status models.MeetingStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "status required"))
		return
	}

	meeting, err := h.meetings.Transition(c.Request.Context(), claims.UserID, c.Param("id"), payload.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, meeting, nil)
}

// AddReminder godoc
// @Summary Append a reminder
// @Tags Meetings
// @Accept json
// @Produce json
// @Param id path string true "Meeting ID"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /meetings/{id}/reminders [post]
func (h *MeetingHandler) AddReminder(c *gin.Context) {
	var payload struct {
		FireTime time.Time `json:"fire_time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "fire_time required"))
		return
	}

	if err := h.meetings.AddReminder(c.Request.Context(), c.Param("id"), payload.FireTime); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// DueReminders godoc
// @Summary List due reminders
// @Description Unsent reminders whose fire time has passed; read-only
// @Tags Meetings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /meetings/reminders/due [get]
func (h *MeetingHandler) DueReminders(c *gin.Context) {
	due, err := h.meetings.DueReminders(c.Request.Context(), time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, due, nil)
}

// MarkReminderSent godoc
// @Summary Mark a reminder as sent
// @Tags Meetings
// @Produce json
// @Param id path string true "Meeting ID"
// @Param index path int true "Reminder position"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /meetings/{id}/reminders/{index}/sent [post]
func (h *MeetingHandler) MarkReminderSent(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid reminder index"))
		return
	}

	if err := h.meetings.MarkReminderSent(c.Request.Context(), c.Param("id"), index); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Export godoc
// @Summary Export the current user's schedule
// @Description Renders the user's meetings as CSV or PDF
// @Tags Meetings
// @Produce octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /meetings/export [get]
func (h *MeetingHandler) Export(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	meetings, err := h.meetings.ListForUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	dataset := export.Dataset{
		Headers: []string{"Title", "Platform", "Date", "Duration (min)", "Status", "Link"},
	}
	for _, m := range meetings {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Title":          m.Title,
			"Platform":       string(m.Platform),
			"Date":           m.Date.UTC().Format(time.RFC3339),
			"Duration (min)": strconv.Itoa(m.DurationMinutes),
			"Status":         string(m.Status),
			"Link":           m.MeetingLink,
		})
	}

	format := c.DefaultQuery("format", "csv")
	switch format {
	case "csv":
		payload, err := h.csv.Render(dataset)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv"))
			return
		}
		c.Header("Content-Disposition", `attachment; filename="meetings.csv"`)
		c.Data(http.StatusOK, "text/csv", payload)
	case "pdf":
		payload, err := h.pdf.Render(dataset, "Meeting Schedule")
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf"))
			return
		}
		c.Header("Content-Disposition", `attachment; filename="meetings.pdf"`)
		c.Data(http.StatusOK, "application/pdf", payload)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format)))
	}
}
