package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/mentor-meet-api/internal/models"
	appErrors "github.com/noah-isme/mentor-meet-api/pkg/errors"
)

type meetingRepository interface {
	Create(ctx context.Context, meeting *models.Meeting) error
	FindByID(ctx context.Context, id string) (*models.Meeting, error)
	ListForUser(ctx context.Context, userID string) ([]models.Meeting, error)
	FindUpcoming(ctx context.Context, before time.Time) ([]models.Meeting, error)
	UpdateStatus(ctx context.Context, id string, from, to models.MeetingStatus) error
	AddParticipants(ctx context.Context, meetingID string, participants []models.Participant) error
	AddReminder(ctx context.Context, meetingID string, reminder *models.Reminder) error
	FindDueReminders(ctx context.Context, now time.Time) ([]models.DueReminder, error)
	MarkReminderSent(ctx context.Context, meetingID string, position int) error
}

type meetingCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const upcomingCacheKey = "meetings:upcoming"

// upcomingCacheEntry pins the cached list to the lookahead window it was
// computed for, so a caller with a different window never gets a stale list.
type upcomingCacheEntry struct {
	Lookahead time.Duration    `json:"lookahead"`
	Meetings  []models.Meeting `json:"meetings"`
}

// CreateMeetingInput carries a fully resolved meeting definition. The link must
// already exist: meetings are never persisted without one.
type CreateMeetingInput struct {
	Title           string                 `validate:"required"`
	Description     string                 ``
	Platform        models.MeetingPlatform `validate:"required"`
	MeetingLink     string                 `validate:"required"`
	Date            time.Time              `validate:"required"`
	DurationMinutes int                    `validate:"required,gt=0"`
	CreatedBy       string                 `validate:"required"`
	Participants    []ParticipantInput     ``
	Reminders       []time.Time            ``
	GoogleEventID   *string                ``
	ZoomMeetingID   *string                ``
}

// ParticipantInput is a participant entry supplied by callers.
type ParticipantInput struct {
	UserID *string `json:"user_id,omitempty"`
	Email  string  `json:"email" validate:"required,email"`
	Role   string  `json:"role,omitempty"`
}

// MeetingService is the meeting registry: it owns creation validation, the
// lifecycle state machine, participant/reminder bookkeeping and the
// due-reminder query.
type MeetingService struct {
	repo      meetingRepository
	cache     meetingCache
	cacheTTL  time.Duration
	metrics   *MetricsService
	audit     schedulingAuditor
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMeetingService constructs a MeetingService. Cache, metrics and auditor
// may be nil.
func NewMeetingService(repo meetingRepository, cache meetingCache, cacheTTL time.Duration, metrics *MetricsService, audit schedulingAuditor, validate *validator.Validate, logger *zap.Logger) *MeetingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeetingService{repo: repo, cache: cache, cacheTTL: cacheTTL, metrics: metrics, audit: audit, validator: validate, logger: logger}
}

// Create validates the input and persists a SCHEDULED meeting. Link
// uniqueness is enforced by the store; a losing racer gets a validation
// error and no record.
func (s *MeetingService) Create(ctx context.Context, input CreateMeetingInput) (*models.Meeting, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid meeting input")
	}
	if strings.TrimSpace(input.MeetingLink) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "meeting link is required")
	}
	if !models.KnownPlatform(input.Platform) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown platform %q", input.Platform))
	}
	if input.DurationMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
	}

	participants, err := buildParticipants(input.Participants)
	if err != nil {
		return nil, err
	}

	reminders := make([]models.Reminder, len(input.Reminders))
	for i, fireTime := range input.Reminders {
		reminders[i] = models.Reminder{FireTime: fireTime.UTC(), Sent: false}
	}

	meeting := &models.Meeting{
		Title:           input.Title,
		Description:     input.Description,
		Platform:        input.Platform,
		MeetingLink:     input.MeetingLink,
		Date:            input.Date.UTC(),
		DurationMinutes: input.DurationMinutes,
		Status:          models.MeetingScheduled,
		CreatedBy:       input.CreatedBy,
		GoogleEventID:   input.GoogleEventID,
		ZoomMeetingID:   input.ZoomMeetingID,
		Participants:    participants,
		Reminders:       reminders,
	}

	start := time.Now()
	if err := s.repo.Create(ctx, meeting); err != nil {
		return nil, err
	}
	s.observeQuery("meetings_insert", start)

	s.invalidateUpcoming(ctx)
	return meeting, nil
}

func buildParticipants(inputs []ParticipantInput) ([]models.Participant, error) {
	participants := make([]models.Participant, 0, len(inputs))
	for _, in := range inputs {
		email := strings.ToLower(strings.TrimSpace(in.Email))
		if email == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "participant email is required")
		}
		participants = append(participants, models.Participant{
			UserID: in.UserID,
			Email:  email,
			Role:   in.Role,
		})
	}
	return participants, nil
}

// Get loads a meeting by id.
func (s *MeetingService) Get(ctx context.Context, id string) (*models.Meeting, error) {
	meeting, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "meeting not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load meeting")
	}
	return meeting, nil
}

// ListForUser returns the meetings the user created or attends.
func (s *MeetingService) ListForUser(ctx context.Context, userID string) ([]models.Meeting, error) {
	meetings, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list meetings")
	}
	return meetings, nil
}

// Transition advances the meeting along the lifecycle graph on behalf of the
// actor. Anything not on the graph, including any move out of a terminal
// status, is rejected and the meeting is left untouched.
func (s *MeetingService) Transition(ctx context.Context, actorID, id string, target models.MeetingStatus) (*models.Meeting, error) {
	if !models.KnownMeetingStatus(target) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", target))
	}

	meeting, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(meeting.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move %s meeting to %s", meeting.Status, target))
	}

	from := meeting.Status
	if err := s.repo.UpdateStatus(ctx, id, from, target); err != nil {
		return nil, err
	}

	meeting.Status = target
	s.recordTransitionAudit(ctx, actorID, id, from, target)
	s.invalidateUpcoming(ctx)
	return meeting, nil
}

func (s *MeetingService) recordTransitionAudit(ctx context.Context, actorID, meetingID string, from, to models.MeetingStatus) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     models.AuditActionMeetingStatus,
		Resource:   "meeting",
		ResourceID: &meetingID,
		OldValues:  []byte(fmt.Sprintf(`{"status":%q}`, from)),
		NewValues:  []byte(fmt.Sprintf(`{"status":%q}`, to)),
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record transition audit log", zap.Error(err))
	}
}

// AddParticipants appends entries while the meeting is still editable.
// Duplicate emails pass through; dedup policy belongs to the caller.
func (s *MeetingService) AddParticipants(ctx context.Context, id string, inputs []ParticipantInput) (*models.Meeting, error) {
	if len(inputs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no participants provided")
	}

	meeting, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !meeting.CanEdit() {
		return nil, appErrors.Clone(appErrors.ErrNotEditable, fmt.Sprintf("meeting is %s", meeting.Status))
	}

	participants, err := buildParticipants(inputs)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AddParticipants(ctx, id, participants); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add participants")
	}

	return s.Get(ctx, id)
}

// AddReminder appends a reminder. Reminder bookkeeping is append-only and is
// allowed regardless of editability.
func (s *MeetingService) AddReminder(ctx context.Context, id string, fireTime time.Time) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	reminder := &models.Reminder{FireTime: fireTime.UTC(), Sent: false}
	if err := s.repo.AddReminder(ctx, id, reminder); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add reminder")
	}
	return nil
}

// FindUpcoming returns SCHEDULED meetings starting within the lookahead
// window, date ascending. Results are served from the short-TTL cache when
// available.
func (s *MeetingService) FindUpcoming(ctx context.Context, now time.Time, lookahead time.Duration) ([]models.Meeting, error) {
	if s.cache != nil {
		var cached upcomingCacheEntry
		err := s.cache.Get(ctx, upcomingCacheKey, &cached)
		if err == nil && cached.Lookahead == lookahead {
			s.observeCache(true)
			return cached.Meetings, nil
		}
		if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("upcoming cache read failed", zap.Error(err))
		}
		s.observeCache(false)
	}

	start := time.Now()
	meetings, err := s.repo.FindUpcoming(ctx, now.Add(lookahead))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query upcoming meetings")
	}
	s.observeQuery("meetings_find_upcoming", start)

	if s.cache != nil && s.cacheTTL > 0 {
		entry := upcomingCacheEntry{Lookahead: lookahead, Meetings: meetings}
		if err := s.cache.Set(ctx, upcomingCacheKey, entry, s.cacheTTL); err != nil {
			s.logger.Warn("upcoming cache write failed", zap.Error(err))
		}
	}

	return meetings, nil
}

// DueReminders returns every unsent reminder whose fire time has passed.
// The query is side-effect free; delivery bookkeeping goes through
// MarkReminderSent.
func (s *MeetingService) DueReminders(ctx context.Context, now time.Time) ([]models.DueReminder, error) {
	start := time.Now()
	due, err := s.repo.FindDueReminders(ctx, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query due reminders")
	}
	s.observeQuery("reminders_find_due", start)
	return due, nil
}

// MarkReminderSent flags a reminder as delivered.
func (s *MeetingService) MarkReminderSent(ctx context.Context, meetingID string, position int) error {
	if err := s.repo.MarkReminderSent(ctx, meetingID, position); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "reminder not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark reminder sent")
	}
	return nil
}

func (s *MeetingService) invalidateUpcoming(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, upcomingCacheKey); err != nil {
		s.logger.Warn("upcoming cache invalidation failed", zap.Error(err))
	}
}

func (s *MeetingService) observeCache(hit bool) {
	if s.metrics != nil {
		s.metrics.ObserveCache(hit)
	}
}

func (s *MeetingService) observeQuery(query string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveDBQuery(query, time.Since(start))
	}
}
