package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mentor-meet-api/internal/models"
	appErrors "github.com/noah-isme/mentor-meet-api/pkg/errors"
)

type mockMeetingRepo struct {
	items         map[string]*models.Meeting
	links         map[string]bool
	createErr     error
	seq           int
	upcomingCalls int
}

func newMockMeetingRepo() *mockMeetingRepo {
	return &mockMeetingRepo{items: map[string]*models.Meeting{}, links: map[string]bool{}}
}

func (m *mockMeetingRepo) Create(ctx context.Context, meeting *models.Meeting) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.links[meeting.MeetingLink] {
		return appErrors.Clone(appErrors.ErrValidation, "meeting link already in use")
	}
	m.seq++
	meeting.ID = fmt.Sprintf("m%d", m.seq)
	m.links[meeting.MeetingLink] = true
	cp := *meeting
	m.items[meeting.ID] = &cp
	return nil
}

func (m *mockMeetingRepo) FindByID(ctx context.Context, id string) (*models.Meeting, error) {
	if meeting, ok := m.items[id]; ok {
		cp := *meeting
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockMeetingRepo) ListForUser(ctx context.Context, userID string) ([]models.Meeting, error) {
	var out []models.Meeting
	for _, meeting := range m.items {
		if meeting.CreatedBy == userID {
			out = append(out, *meeting)
		}
	}
	return out, nil
}

func (m *mockMeetingRepo) FindUpcoming(ctx context.Context, before time.Time) ([]models.Meeting, error) {
	m.upcomingCalls++
	var out []models.Meeting
	for _, meeting := range m.items {
		if meeting.Status == models.MeetingScheduled && !meeting.Date.After(before) {
			out = append(out, *meeting)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *mockMeetingRepo) UpdateStatus(ctx context.Context, id string, from, to models.MeetingStatus) error {
	meeting, ok := m.items[id]
	if !ok || meeting.Status != from {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "meeting status changed concurrently")
	}
	meeting.Status = to
	return nil
}

func (m *mockMeetingRepo) AddParticipants(ctx context.Context, meetingID string, participants []models.Participant) error {
	meeting := m.items[meetingID]
	meeting.Participants = append(meeting.Participants, participants...)
	return nil
}

func (m *mockMeetingRepo) AddReminder(ctx context.Context, meetingID string, reminder *models.Reminder) error {
	meeting := m.items[meetingID]
	reminder.Position = len(meeting.Reminders)
	meeting.Reminders = append(meeting.Reminders, *reminder)
	return nil
}

func (m *mockMeetingRepo) FindDueReminders(ctx context.Context, now time.Time) ([]models.DueReminder, error) {
	var out []models.DueReminder
	for _, meeting := range m.items {
		for _, reminder := range meeting.Reminders {
			if !reminder.Sent && !reminder.FireTime.After(now) {
				out = append(out, models.DueReminder{Meeting: *meeting, Reminder: reminder})
			}
		}
	}
	return out, nil
}

func (m *mockMeetingRepo) MarkReminderSent(ctx context.Context, meetingID string, position int) error {
	meeting, ok := m.items[meetingID]
	if !ok || position >= len(meeting.Reminders) {
		return sql.ErrNoRows
	}
	meeting.Reminders[position].Sent = true
	return nil
}

// mockCache counts calls; with a non-nil stored map it also behaves as a
// real key/value store.
type mockCache struct {
	gets    int
	sets    int
	deletes int
	stored  map[string][]byte
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.gets++
	raw, ok := m.stored[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.sets++
	if m.stored != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		m.stored[key] = raw
	}
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.deletes++
	delete(m.stored, key)
	return nil
}

type mockAuditor struct {
	entries []models.AuditLog
}

func (m *mockAuditor) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.entries = append(m.entries, *log)
	return nil
}

func validInput() CreateMeetingInput {
	return CreateMeetingInput{
		Title:           "Weekly sync",
		Platform:        models.PlatformGoogle,
		MeetingLink:     "https://meet.google.com/abc-defg-hij",
		Date:            time.Now().Add(time.Hour),
		DurationMinutes: 30,
		CreatedBy:       "u1",
	}
}

func TestMeetingCreate(t *testing.T) {
	repo := newMockMeetingRepo()
	svc := NewMeetingService(repo, nil, 0, nil, nil, nil, zap.NewNop())

	input := validInput()
	input.Participants = []ParticipantInput{{Email: "Attendee@Example.com"}}
	input.Reminders = []time.Time{time.Now().Add(30 * time.Minute)}

	meeting, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, models.MeetingScheduled, meeting.Status)
	assert.Equal(t, "attendee@example.com", meeting.Participants[0].Email)
	require.Len(t, meeting.Reminders, 1)
	assert.False(t, meeting.Reminders[0].Sent)
}

func TestMeetingCreateRequiresLink(t *testing.T) {
	svc := NewMeetingService(newMockMeetingRepo(), nil, 0, nil, nil, nil, zap.NewNop())

	input := validInput()
	input.MeetingLink = ""
	_, err := svc.Create(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMeetingCreateDuplicateLink(t *testing.T) {
	repo := newMockMeetingRepo()
	svc := NewMeetingService(repo, nil, 0, nil, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), validInput())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Len(t, repo.items, 1)
}

func TestMeetingCreateUnknownPlatform(t *testing.T) {
	svc := NewMeetingService(newMockMeetingRepo(), nil, 0, nil, nil, nil, zap.NewNop())

	input := validInput()
	input.Platform = models.MeetingPlatform("TEAMS")
	_, err := svc.Create(context.Background(), input)
	require.Error(t, err)
}

func TestMeetingTransition(t *testing.T) {
	repo := newMockMeetingRepo()
	svc := NewMeetingService(repo, nil, 0, nil, nil, nil, zap.NewNop())

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	meeting, err := svc.Transition(context.Background(), "u1", created.ID, models.MeetingOngoing)
	require.NoError(t, err)
	assert.Equal(t, models.MeetingOngoing, meeting.Status)

	meeting, err = svc.Transition(context.Background(), "u1", created.ID, models.MeetingCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.MeetingCompleted, meeting.Status)
}

func TestMeetingTransitionRejectedLeavesStateUntouched(t *testing.T) {
	repo := newMockMeetingRepo()
	svc := NewMeetingService(repo, nil, 0, nil, nil, nil, zap.NewNop())

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), "u1", created.ID, models.MeetingCompleted)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	stored, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MeetingScheduled, stored.Status)
}

func TestMeetingTransitionOutOfTerminal(t *testing.T) {
	repo := newMockMeetingRepo()
	svc := NewMeetingService(repo, nil, 0, nil, nil, nil, zap.NewNop())

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), "u1", created.ID, models.MeetingCancelled)
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), "u1", created.ID, models.MeetingOngoing)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestMeetingTransitionUnknownStatus(t *testing.T) {
	svc := NewMeetingService(newMockMeetingRepo(), nil, 0, nil, nil, nil, zap.NewNop())

	_, err := svc.Transition(context.Background(), "u1", "m1", models.MeetingStatus("PAUSED"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAddParticipantsWhileScheduled(t *testing.T) {
	repo := newMockMeetingRepo()
	svc := NewMeetingService(repo, nil, 0, nil, nil, nil, zap.NewNop())

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	meeting, err := svc.AddParticipants(context.Background(), created.ID, []ParticipantInput{{Email: "new@example.com"}})
	require.NoError(t, err)
	assert.Len(t, meeting.Participants, 1)
}

func TestAddParticipantsAfterCompletionRejected(t *testing.T) {
	repo := newMockMeetingRepo()
	svc := NewMeetingService(repo, nil, 0, nil, nil, nil, zap.NewNop())

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), "u1", created.ID, models.MeetingOngoing)
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), "u1", created.ID, models.MeetingCompleted)
	require.NoError(t, err)

	_, err = svc.AddParticipants(context.Background(), created.ID, []ParticipantInput{{Email: "late@example.com"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEditable.Code, appErrors.FromError(err).Code)

	stored, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Participants)
}

func TestAddReminderAllowedAfterCompletion(t *testing.T) {
	repo := newMockMeetingRepo()
	svc := NewMeetingService(repo, nil, 0, nil, nil, nil, zap.NewNop())

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), "u1", created.ID, models.MeetingCancelled)
	require.NoError(t, err)

	require.NoError(t, svc.AddReminder(context.Background(), created.ID, time.Now()))
	stored, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Reminders, 1)
}

func TestFindUpcomingWindow(t *testing.T) {
	repo := newMockMeetingRepo()
	svc := NewMeetingService(repo, nil, 0, nil, nil, nil, zap.NewNop())

	now := time.Now().UTC()

	inWindow := validInput()
	inWindow.Date = now.Add(3 * time.Minute)
	inWindow.MeetingLink = "https://meet.google.com/in-window"
	_, err := svc.Create(context.Background(), inWindow)
	require.NoError(t, err)

	sooner := validInput()
	sooner.Date = now.Add(time.Minute)
	sooner.MeetingLink = "https://meet.google.com/sooner"
	_, err = svc.Create(context.Background(), sooner)
	require.NoError(t, err)

	beyond := validInput()
	beyond.Date = now.Add(time.Hour)
	beyond.MeetingLink = "https://meet.google.com/beyond"
	_, err = svc.Create(context.Background(), beyond)
	require.NoError(t, err)

	upcoming, err := svc.FindUpcoming(context.Background(), now, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "https://meet.google.com/sooner", upcoming[0].MeetingLink)
	assert.Equal(t, "https://meet.google.com/in-window", upcoming[1].MeetingLink)
}

func TestFindUpcomingPopulatesCache(t *testing.T) {
	repo := newMockMeetingRepo()
	cache := &mockCache{}
	svc := NewMeetingService(repo, cache, time.Minute, nil, nil, nil, zap.NewNop())

	_, err := svc.FindUpcoming(context.Background(), time.Now(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.gets)
	assert.Equal(t, 1, cache.sets)
}

func TestCreateInvalidatesUpcomingCache(t *testing.T) {
	repo := newMockMeetingRepo()
	cache := &mockCache{}
	svc := NewMeetingService(repo, cache, time.Minute, nil, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.deletes)
}

func TestFindUpcomingServesCachedWindow(t *testing.T) {
	repo := newMockMeetingRepo()
	cache := &mockCache{stored: map[string][]byte{}}
	metrics := NewMetricsService()
	svc := NewMeetingService(repo, cache, time.Minute, metrics, nil, nil, zap.NewNop())

	now := time.Now().UTC()
	_, err := svc.FindUpcoming(context.Background(), now, 5*time.Minute)
	require.NoError(t, err)
	_, err = svc.FindUpcoming(context.Background(), now, 5*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.upcomingCalls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheMisses))
}

func TestFindUpcomingDifferentWindowBypassesCache(t *testing.T) {
	repo := newMockMeetingRepo()
	cache := &mockCache{stored: map[string][]byte{}}
	metrics := NewMetricsService()
	svc := NewMeetingService(repo, cache, time.Minute, metrics, nil, nil, zap.NewNop())

	now := time.Now().UTC()
	_, err := svc.FindUpcoming(context.Background(), now, 5*time.Minute)
	require.NoError(t, err)
	_, err = svc.FindUpcoming(context.Background(), now, 10*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 2, repo.upcomingCalls)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.cacheMisses))
}

func TestTransitionRecordsAudit(t *testing.T) {
	repo := newMockMeetingRepo()
	audit := &mockAuditor{}
	svc := NewMeetingService(repo, nil, 0, nil, audit, nil, zap.NewNop())

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), "u1", created.ID, models.MeetingOngoing)
	require.NoError(t, err)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, models.AuditActionMeetingStatus, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u1", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, created.ID, *entry.ResourceID)
	assert.JSONEq(t, `{"status":"ONGOING"}`, string(entry.NewValues))
}

func TestDueRemindersAndMarkSent(t *testing.T) {
	repo := newMockMeetingRepo()
	svc := NewMeetingService(repo, nil, 0, nil, nil, nil, zap.NewNop())

	now := time.Now().UTC()
	input := validInput()
	input.Reminders = []time.Time{now.Add(-time.Minute), now.Add(time.Hour)}
	created, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	due, err := svc.DueReminders(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, svc.MarkReminderSent(context.Background(), created.ID, 0))

	due, err = svc.DueReminders(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMarkReminderSentUnknownPosition(t *testing.T) {
	repo := newMockMeetingRepo()
	svc := NewMeetingService(repo, nil, 0, nil, nil, nil, zap.NewNop())

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	err = svc.MarkReminderSent(context.Background(), created.ID, 7)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
