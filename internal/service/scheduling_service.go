package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/mentor-meet-api/internal/gateway"
	"github.com/noah-isme/mentor-meet-api/internal/models"
	appErrors "github.com/noah-isme/mentor-meet-api/pkg/errors"
)

type calendarProvider interface {
	CreateEvent(ctx context.Context, req gateway.CreateEventRequest) (*gateway.CreateEventResponse, error)
}

type meetingRegistry interface {
	Create(ctx context.Context, input CreateMeetingInput) (*models.Meeting, error)
}

type schedulingAuthorizer interface {
	Authorize(ctx context.Context, actorID string, permission models.Permission) (*models.User, error)
}

type schedulingAuditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ScheduleMeetingRequest is the boundary payload for scheduling a meeting.
type ScheduleMeetingRequest struct {
	Title         string                 `json:"title" validate:"required"`
	Description   string                 `json:"description"`
	Platform      models.MeetingPlatform `json:"platform" validate:"required,oneof=GOOGLE ZOOM"`
	StartDateTime time.Time              `json:"start_date_time" validate:"required"`
	EndDateTime   time.Time              `json:"end_date_time" validate:"required"`
	Participants  []ParticipantInput     `json:"participants" validate:"dive"`
	Reminders     []time.Time            `json:"reminders"`
}

// ScheduleMeetingResult returns the persisted meeting plus an echo of the
// provider's event reference.
type ScheduleMeetingResult struct {
	Meeting          *models.Meeting `json:"meeting"`
	ExternalEventRef string          `json:"external_event_ref"`
}

// SchedulingService orchestrates meeting creation: authorization, the
// external calendar call, then the registry commit. The external call must
// succeed before anything is persisted; a meeting never exists without a
// join link.
type SchedulingService struct {
	authz     schedulingAuthorizer
	calendar  calendarProvider
	meetings  meetingRegistry
	audit     schedulingAuditor
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchedulingService constructs a SchedulingService. The auditor may be nil.
func NewSchedulingService(authz schedulingAuthorizer, calendar calendarProvider, meetings meetingRegistry, audit schedulingAuditor, validate *validator.Validate, logger *zap.Logger) *SchedulingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulingService{authz: authz, calendar: calendar, meetings: meetings, audit: audit, validator: validate, logger: logger}
}

// Schedule runs the full coordination flow for the given actor.
func (s *SchedulingService) Schedule(ctx context.Context, actorID string, req ScheduleMeetingRequest) (*ScheduleMeetingResult, error) {
	actor, err := s.authz.Authorize(ctx, actorID, models.PermissionCreateMeeting)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	start := req.StartDateTime.UTC()
	end := req.EndDateTime.UTC()
	duration := int(end.Sub(start).Minutes())
	if duration <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end must be after start")
	}

	attendees := make([]string, 0, len(req.Participants))
	for _, p := range req.Participants {
		email := strings.ToLower(strings.TrimSpace(p.Email))
		if email == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "participant email is required")
		}
		attendees = append(attendees, email)
	}

	event, err := s.calendar.CreateEvent(ctx, gateway.CreateEventRequest{
		Summary:       req.Title,
		Description:   req.Description,
		StartDateTime: start,
		EndDateTime:   end,
		Attendees:     attendees,
	})
	if err != nil {
		s.logger.Warn("external scheduling failed, nothing persisted",
			zap.String("actor_id", actor.ID),
			zap.Error(err))
		return nil, err
	}

	input := CreateMeetingInput{
		Title:           req.Title,
		Description:     req.Description,
		Platform:        req.Platform,
		MeetingLink:     event.JoinLink,
		Date:            start,
		DurationMinutes: duration,
		CreatedBy:       actor.ID,
		Participants:    req.Participants,
		Reminders:       req.Reminders,
	}
	switch req.Platform {
	case models.PlatformGoogle:
		input.GoogleEventID = &event.EventID
	case models.PlatformZoom:
		input.ZoomMeetingID = &event.EventID
	}

	meeting, err := s.meetings.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor.ID,
			Action:     models.AuditActionMeetingCreate,
			Resource:   "meeting",
			ResourceID: &meeting.ID,
			NewValues:  []byte(`{"status":"scheduled"}`),
		}); err != nil {
			s.logger.Warn("failed to record meeting audit log", zap.Error(err))
		}
	}

	return &ScheduleMeetingResult{Meeting: meeting, ExternalEventRef: event.EventID}, nil
}
