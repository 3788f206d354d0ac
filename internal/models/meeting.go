package models

import "time"

// MeetingPlatform identifies the conferencing provider for a meeting.
type MeetingPlatform string

const (
	PlatformGoogle MeetingPlatform = "GOOGLE"
	PlatformZoom   MeetingPlatform = "ZOOM"
)

// KnownPlatform reports whether the platform value is recognised.
func KnownPlatform(p MeetingPlatform) bool {
	switch p {
	case PlatformGoogle, PlatformZoom:
		return true
	}
	return false
}

// MeetingStatus represents the meeting lifecycle state.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "SCHEDULED"
	MeetingOngoing   MeetingStatus = "ONGOING"
	MeetingCompleted MeetingStatus = "COMPLETED"
	MeetingCancelled MeetingStatus = "CANCELLED"
)

// meetingTransitions is the lifecycle graph. COMPLETED and CANCELLED are
// terminal.
var meetingTransitions = map[MeetingStatus][]MeetingStatus{
	MeetingScheduled: {MeetingOngoing, MeetingCancelled},
	MeetingOngoing:   {MeetingCompleted, MeetingCancelled},
}

// CanTransition reports whether the lifecycle graph permits from→to.
func CanTransition(from, to MeetingStatus) bool {
	for _, next := range meetingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// KnownMeetingStatus reports whether the status value is recognised.
func KnownMeetingStatus(s MeetingStatus) bool {
	switch s {
	case MeetingScheduled, MeetingOngoing, MeetingCompleted, MeetingCancelled:
		return true
	}
	return false
}

// Meeting represents a scheduled meeting stored in the meetings table.
// Participants and reminders live in child tables and are loaded alongside.
type Meeting struct {
	ID              string          `db:"id" json:"id"`
	Title           string          `db:"title" json:"title"`
	Description     string          `db:"description" json:"description,omitempty"`
	Platform        MeetingPlatform `db:"platform" json:"platform"`
	MeetingLink     string          `db:"meeting_link" json:"meeting_link"`
	Date            time.Time       `db:"date" json:"date"`
	DurationMinutes int             `db:"duration_minutes" json:"duration_minutes"`
	Status          MeetingStatus   `db:"status" json:"status"`
	CreatedBy       string          `db:"created_by" json:"created_by"`
	GoogleEventID   *string         `db:"google_event_id" json:"google_event_id,omitempty"`
	ZoomMeetingID   *string         `db:"zoom_meeting_id" json:"zoom_meeting_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`

	Participants []Participant `db:"-" json:"participants"`
	Reminders    []Reminder    `db:"-" json:"reminders"`
}

// CanEdit reports whether mutating operations are still permitted.
func (m *Meeting) CanEdit() bool {
	return m.Status == MeetingScheduled
}

// ExternalEventRef returns the provider event reference for the meeting's
// platform, if one was stored.
func (m *Meeting) ExternalEventRef() *string {
	switch m.Platform {
	case PlatformGoogle:
		return m.GoogleEventID
	case PlatformZoom:
		return m.ZoomMeetingID
	}
	return nil
}

// Participant is an attendee entry. UserID is a weak reference: externally
// invited attendees have no account and carry only an email.
type Participant struct {
	ID        string     `db:"id" json:"id"`
	MeetingID string     `db:"meeting_id" json:"-"`
	UserID    *string    `db:"user_id" json:"user_id,omitempty"`
	Email     string     `db:"email" json:"email"`
	Role      string     `db:"role" json:"role,omitempty"`
	JoinedAt  *time.Time `db:"joined_at" json:"joined_at,omitempty"`
	Position  int        `db:"position" json:"-"`
}

// Reminder is an append-only reminder entry for a meeting.
type Reminder struct {
	ID        string    `db:"id" json:"id"`
	MeetingID string    `db:"meeting_id" json:"-"`
	FireTime  time.Time `db:"fire_time" json:"fire_time"`
	Sent      bool      `db:"sent" json:"sent"`
	Position  int       `db:"position" json:"position"`
}

// DueReminder pairs a meeting with one of its unsent reminders.
type DueReminder struct {
	Meeting  Meeting  `json:"meeting"`
	Reminder Reminder `json:"reminder"`
}
