package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mentor-meet-api/internal/gateway"
	"github.com/noah-isme/mentor-meet-api/internal/models"
	appErrors "github.com/noah-isme/mentor-meet-api/pkg/errors"
)

type mockCalendar struct {
	response *gateway.CreateEventResponse
	err      error
	requests []gateway.CreateEventRequest
}

func (m *mockCalendar) CreateEvent(ctx context.Context, req gateway.CreateEventRequest) (*gateway.CreateEventResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

type mockRegistry struct {
	created []CreateMeetingInput
	err     error
}

func (m *mockRegistry) Create(ctx context.Context, input CreateMeetingInput) (*models.Meeting, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created = append(m.created, input)
	return &models.Meeting{
		ID:              "m1",
		Title:           input.Title,
		Platform:        input.Platform,
		MeetingLink:     input.MeetingLink,
		Date:            input.Date,
		DurationMinutes: input.DurationMinutes,
		Status:          models.MeetingScheduled,
		CreatedBy:       input.CreatedBy,
		GoogleEventID:   input.GoogleEventID,
		ZoomMeetingID:   input.ZoomMeetingID,
	}, nil
}

type allowAllAuthorizer struct {
	user *models.User
	err  error
}

func (m *allowAllAuthorizer) Authorize(ctx context.Context, actorID string, permission models.Permission) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.user, nil
}

func scheduleRequest() ScheduleMeetingRequest {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	return ScheduleMeetingRequest{
		Title:         "Mentor session",
		Platform:      models.PlatformGoogle,
		StartDateTime: start,
		EndDateTime:   start.Add(time.Hour),
		Participants:  []ParticipantInput{{Email: "Mentee@Example.com"}},
	}
}

func TestScheduleSuccess(t *testing.T) {
	calendar := &mockCalendar{response: &gateway.CreateEventResponse{JoinLink: "https://meet.google.com/xyz", EventID: "evt-1"}}
	registry := &mockRegistry{}
	authz := &allowAllAuthorizer{user: activeUser("u1", models.RoleMentor)}
	svc := NewSchedulingService(authz, calendar, registry, nil, nil, zap.NewNop())

	result, err := svc.Schedule(context.Background(), "u1", scheduleRequest())
	require.NoError(t, err)
	assert.Equal(t, models.MeetingScheduled, result.Meeting.Status)
	assert.Equal(t, "https://meet.google.com/xyz", result.Meeting.MeetingLink)
	assert.Equal(t, 60, result.Meeting.DurationMinutes)
	assert.Equal(t, "evt-1", result.ExternalEventRef)

	require.Len(t, registry.created, 1)
	require.NotNil(t, registry.created[0].GoogleEventID)
	assert.Equal(t, "evt-1", *registry.created[0].GoogleEventID)
	assert.Nil(t, registry.created[0].ZoomMeetingID)

	require.Len(t, calendar.requests, 1)
	assert.Equal(t, []string{"mentee@example.com"}, calendar.requests[0].Attendees)
}

func TestScheduleZoomStoresZoomRef(t *testing.T) {
	calendar := &mockCalendar{response: &gateway.CreateEventResponse{JoinLink: "https://zoom.us/j/1", EventID: "zm-9"}}
	registry := &mockRegistry{}
	authz := &allowAllAuthorizer{user: activeUser("u1", models.RoleMentor)}
	svc := NewSchedulingService(authz, calendar, registry, nil, nil, zap.NewNop())

	req := scheduleRequest()
	req.Platform = models.PlatformZoom
	_, err := svc.Schedule(context.Background(), "u1", req)
	require.NoError(t, err)

	require.Len(t, registry.created, 1)
	require.NotNil(t, registry.created[0].ZoomMeetingID)
	assert.Equal(t, "zm-9", *registry.created[0].ZoomMeetingID)
	assert.Nil(t, registry.created[0].GoogleEventID)
}

func TestScheduleProviderFailurePersistsNothing(t *testing.T) {
	calendar := &mockCalendar{err: appErrors.Clone(appErrors.ErrExternalScheduling, "provider unreachable")}
	registry := &mockRegistry{}
	authz := &allowAllAuthorizer{user: activeUser("u1", models.RoleMentor)}
	svc := NewSchedulingService(authz, calendar, registry, nil, nil, zap.NewNop())

	_, err := svc.Schedule(context.Background(), "u1", scheduleRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrExternalScheduling.Code, appErrors.FromError(err).Code)
	assert.Empty(t, registry.created)
}

func TestScheduleUnauthorizedSkipsProvider(t *testing.T) {
	calendar := &mockCalendar{response: &gateway.CreateEventResponse{JoinLink: "x", EventID: "y"}}
	registry := &mockRegistry{}
	authz := &allowAllAuthorizer{err: appErrors.Clone(appErrors.ErrForbidden, "missing permission")}
	svc := NewSchedulingService(authz, calendar, registry, nil, nil, zap.NewNop())

	_, err := svc.Schedule(context.Background(), "u1", scheduleRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, calendar.requests)
	assert.Empty(t, registry.created)
}

func TestScheduleEndBeforeStart(t *testing.T) {
	calendar := &mockCalendar{response: &gateway.CreateEventResponse{JoinLink: "x", EventID: "y"}}
	registry := &mockRegistry{}
	authz := &allowAllAuthorizer{user: activeUser("u1", models.RoleMentor)}
	svc := NewSchedulingService(authz, calendar, registry, nil, nil, zap.NewNop())

	req := scheduleRequest()
	req.EndDateTime = req.StartDateTime.Add(-time.Minute)
	_, err := svc.Schedule(context.Background(), "u1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, calendar.requests)
}

func TestScheduleUnknownPlatformRejected(t *testing.T) {
	authz := &allowAllAuthorizer{user: activeUser("u1", models.RoleMentor)}
	svc := NewSchedulingService(authz, &mockCalendar{}, &mockRegistry{}, nil, nil, zap.NewNop())

	req := scheduleRequest()
	req.Platform = models.MeetingPlatform("TEAMS")
	_, err := svc.Schedule(context.Background(), "u1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
