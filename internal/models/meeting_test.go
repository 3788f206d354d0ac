package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(MeetingScheduled, MeetingOngoing))
	assert.True(t, CanTransition(MeetingScheduled, MeetingCancelled))
	assert.True(t, CanTransition(MeetingOngoing, MeetingCompleted))
	assert.True(t, CanTransition(MeetingOngoing, MeetingCancelled))

	assert.False(t, CanTransition(MeetingScheduled, MeetingCompleted))
	assert.False(t, CanTransition(MeetingCompleted, MeetingOngoing))
	assert.False(t, CanTransition(MeetingCancelled, MeetingScheduled))
	assert.False(t, CanTransition(MeetingOngoing, MeetingScheduled))
}

func TestCanEdit(t *testing.T) {
	m := &Meeting{Status: MeetingScheduled}
	assert.True(t, m.CanEdit())

	for _, status := range []MeetingStatus{MeetingOngoing, MeetingCompleted, MeetingCancelled} {
		m.Status = status
		assert.False(t, m.CanEdit(), "status %s should not be editable", status)
	}
}

func TestExternalEventRef(t *testing.T) {
	google := "evt-1"
	zoom := "zm-2"
	m := &Meeting{Platform: PlatformGoogle, GoogleEventID: &google, ZoomMeetingID: &zoom}
	assert.Equal(t, &google, m.ExternalEventRef())

	m.Platform = PlatformZoom
	assert.Equal(t, &zoom, m.ExternalEventRef())

	m.Platform = MeetingPlatform("TEAMS")
	assert.Nil(t, m.ExternalEventRef())
}
