package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mentor-meet-api/internal/models"
	appErrors "github.com/noah-isme/mentor-meet-api/pkg/errors"
)

const meetingColumns = `id, title, description, platform, meeting_link, date, duration_minutes, status, created_by, google_event_id, zoom_meeting_id, created_at, updated_at`

// MeetingRepository provides database access for meetings and their child
// participant and reminder rows.
type MeetingRepository struct {
	db *sqlx.DB
}

// NewMeetingRepository creates a new instance of MeetingRepository.
func NewMeetingRepository(db *sqlx.DB) *MeetingRepository {
	return &MeetingRepository{db: db}
}

// Create inserts a meeting with its participants and reminders in a single
// transaction. Racing creates on the same meeting_link leave exactly one
// winner; the losers surface a validation error.
func (r *MeetingRepository) Create(ctx context.Context, meeting *models.Meeting) error {
	if meeting.ID == "" {
		meeting.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if meeting.CreatedAt.IsZero() {
		meeting.CreatedAt = now
	}
	meeting.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create meeting: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertMeeting = `INSERT INTO meetings (id, title, description, platform, meeting_link, date, duration_minutes, status, created_by, google_event_id, zoom_meeting_id, created_at, updated_at)
		VALUES (:id, :title, :description, :platform, :meeting_link, :date, :duration_minutes, :status, :created_by, :google_event_id, :zoom_meeting_id, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertMeeting, meeting); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrValidation, "meeting link already in use")
		}
		return fmt.Errorf("create meeting: %w", err)
	}

	if err := insertParticipants(ctx, tx, meeting.ID, meeting.Participants, 0); err != nil {
		return err
	}

	for i := range meeting.Reminders {
		rem := &meeting.Reminders[i]
		if rem.ID == "" {
			rem.ID = uuid.NewString()
		}
		rem.MeetingID = meeting.ID
		rem.Position = i
		const insertReminder = `INSERT INTO meeting_reminders (id, meeting_id, fire_time, sent, position) VALUES (:id, :meeting_id, :fire_time, :sent, :position)`
		if _, err := tx.NamedExecContext(ctx, insertReminder, rem); err != nil {
			return fmt.Errorf("create reminder: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create meeting: %w", err)
	}
	return nil
}

func insertParticipants(ctx context.Context, tx *sqlx.Tx, meetingID string, participants []models.Participant, startPos int) error {
	for i := range participants {
		p := &participants[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.MeetingID = meetingID
		p.Position = startPos + i
		const query = `INSERT INTO meeting_participants (id, meeting_id, user_id, email, role, joined_at, position) VALUES (:id, :meeting_id, :user_id, :email, :role, :joined_at, :position)`
		if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
			return fmt.Errorf("create participant: %w", err)
		}
	}
	return nil
}

// FindByID loads a meeting with participants and reminders.
func (r *MeetingRepository) FindByID(ctx context.Context, id string) (*models.Meeting, error) {
	query := fmt.Sprintf(`SELECT %s FROM meetings WHERE id = $1 LIMIT 1`, meetingColumns)
	var meeting models.Meeting
	if err := r.db.GetContext(ctx, &meeting, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find meeting by id: %w", err)
	}
	if err := r.loadChildren(ctx, &meeting); err != nil {
		return nil, err
	}
	return &meeting, nil
}

func (r *MeetingRepository) loadChildren(ctx context.Context, meeting *models.Meeting) error {
	const participantQuery = `SELECT id, meeting_id, user_id, email, role, joined_at, position FROM meeting_participants WHERE meeting_id = $1 ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &meeting.Participants, participantQuery, meeting.ID); err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	const reminderQuery = `SELECT id, meeting_id, fire_time, sent, position FROM meeting_reminders WHERE meeting_id = $1 ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &meeting.Reminders, reminderQuery, meeting.ID); err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}
	return nil
}

// ListForUser returns meetings the user created or participates in, newest
// first.
func (r *MeetingRepository) ListForUser(ctx context.Context, userID string) ([]models.Meeting, error) {
	query := fmt.Sprintf(`SELECT %s FROM meetings
		WHERE created_by = $1 OR id IN (SELECT meeting_id FROM meeting_participants WHERE user_id = $1)
		ORDER BY date DESC`, meetingColumns)
	var meetings []models.Meeting
	if err := r.db.SelectContext(ctx, &meetings, query, userID); err != nil {
		return nil, fmt.Errorf("list meetings for user: %w", err)
	}
	for i := range meetings {
		if err := r.loadChildren(ctx, &meetings[i]); err != nil {
			return nil, err
		}
	}
	return meetings, nil
}

// FindUpcoming returns scheduled meetings starting at or before the given
// horizon, ordered by date ascending.
func (r *MeetingRepository) FindUpcoming(ctx context.Context, before time.Time) ([]models.Meeting, error) {
	query := fmt.Sprintf(`SELECT %s FROM meetings WHERE status = $1 AND date <= $2 ORDER BY date ASC`, meetingColumns)
	var meetings []models.Meeting
	if err := r.db.SelectContext(ctx, &meetings, query, models.MeetingScheduled, before); err != nil {
		return nil, fmt.Errorf("find upcoming meetings: %w", err)
	}
	return meetings, nil
}

// UpdateStatus advances the meeting status guarded by the expected current
// status so concurrent transitions cannot skip the lifecycle graph.
func (r *MeetingRepository) UpdateStatus(ctx context.Context, id string, from, to models.MeetingStatus) error {
	const query = `UPDATE meetings SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update meeting status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update meeting status rows: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "meeting status changed concurrently")
	}
	return nil
}

// AddParticipants appends participant rows after the existing ones.
func (r *MeetingRepository) AddParticipants(ctx context.Context, meetingID string, participants []models.Participant) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add participants: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var maxPos sql.NullInt64
	if err := tx.GetContext(ctx, &maxPos, `SELECT MAX(position) FROM meeting_participants WHERE meeting_id = $1`, meetingID); err != nil {
		return fmt.Errorf("max participant position: %w", err)
	}
	start := 0
	if maxPos.Valid {
		start = int(maxPos.Int64) + 1
	}

	if err := insertParticipants(ctx, tx, meetingID, participants, start); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add participants: %w", err)
	}
	return nil
}

// AddReminder appends a reminder row.
func (r *MeetingRepository) AddReminder(ctx context.Context, meetingID string, reminder *models.Reminder) error {
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	reminder.MeetingID = meetingID

	var maxPos sql.NullInt64
	if err := r.db.GetContext(ctx, &maxPos, `SELECT MAX(position) FROM meeting_reminders WHERE meeting_id = $1`, meetingID); err != nil {
		return fmt.Errorf("max reminder position: %w", err)
	}
	if maxPos.Valid {
		reminder.Position = int(maxPos.Int64) + 1
	}

	const query = `INSERT INTO meeting_reminders (id, meeting_id, fire_time, sent, position) VALUES (:id, :meeting_id, :fire_time, :sent, :position)`
	if _, err := r.db.NamedExecContext(ctx, query, reminder); err != nil {
		return fmt.Errorf("add reminder: %w", err)
	}
	return nil
}

// FindDueReminders returns unsent reminders whose fire time has passed,
// paired with their meetings. Read-only; marking sent is explicit.
func (r *MeetingRepository) FindDueReminders(ctx context.Context, now time.Time) ([]models.DueReminder, error) {
	const query = `SELECT r.id, r.meeting_id, r.fire_time, r.sent, r.position FROM meeting_reminders r
		WHERE r.fire_time <= $1 AND r.sent = FALSE ORDER BY r.fire_time ASC`
	var reminders []models.Reminder
	if err := r.db.SelectContext(ctx, &reminders, query, now); err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}

	due := make([]models.DueReminder, 0, len(reminders))
	for _, rem := range reminders {
		meetingQuery := fmt.Sprintf(`SELECT %s FROM meetings WHERE id = $1 LIMIT 1`, meetingColumns)
		var meeting models.Meeting
		if err := r.db.GetContext(ctx, &meeting, meetingQuery, rem.MeetingID); err != nil {
			return nil, fmt.Errorf("load meeting for reminder: %w", err)
		}
		due = append(due, models.DueReminder{Meeting: meeting, Reminder: rem})
	}
	return due, nil
}

// MarkReminderSent flags a single reminder as delivered.
func (r *MeetingRepository) MarkReminderSent(ctx context.Context, meetingID string, position int) error {
	const query = `UPDATE meeting_reminders SET sent = TRUE WHERE meeting_id = $1 AND position = $2`
	res, err := r.db.ExecContext(ctx, query, meetingID, position)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark reminder sent rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
