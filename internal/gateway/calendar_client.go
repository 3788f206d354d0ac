package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mentor-meet-api/pkg/config"
	appErrors "github.com/noah-isme/mentor-meet-api/pkg/errors"
)

// CreateEventRequest is the payload sent to the calendar provider service.
type CreateEventRequest struct {
	Summary       string    `json:"summary"`
	Description   string    `json:"description,omitempty"`
	StartDateTime time.Time `json:"startDateTime"`
	EndDateTime   time.Time `json:"endDateTime"`
	Attendees     []string  `json:"attendees"`
	TimeZone      string    `json:"timeZone"`
}

// CreateEventResponse carries the join link and the provider's opaque event
// reference.
type CreateEventResponse struct {
	JoinLink string `json:"meetLink"`
	EventID  string `json:"eventId"`
}

// CalendarClient talks to the external calendar provider microservice.
type CalendarClient struct {
	baseURL    string
	timeZone   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewCalendarClient constructs a client from configuration.
func NewCalendarClient(cfg config.CalendarConfig, logger *zap.Logger) *CalendarClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CalendarClient{
		baseURL:    cfg.BaseURL,
		timeZone:   cfg.TimeZone,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// CreateEvent asks the provider to create a calendar event and returns the
// join link plus event reference. Any transport fault, timeout, cancellation
// or non-2xx response surfaces as an external scheduling failure so callers
// never commit partial state.
func (c *CalendarClient) CreateEvent(ctx context.Context, req CreateEventRequest) (*CreateEventResponse, error) {
	if req.TimeZone == "" {
		req.TimeZone = c.timeZone
	}
	req.StartDateTime = req.StartDateTime.UTC()
	req.EndDateTime = req.EndDateTime.UTC()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalScheduling.Code, appErrors.ErrExternalScheduling.Status, "failed to encode calendar request")
	}

	url := c.baseURL + "/api/calendar/create-event"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalScheduling.Code, appErrors.ErrExternalScheduling.Status, "failed to build calendar request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("calendar provider call failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrExternalScheduling.Code, appErrors.ErrExternalScheduling.Status, "calendar provider unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("calendar provider returned error", zap.Int("status", resp.StatusCode))
		return nil, appErrors.Clone(appErrors.ErrExternalScheduling, fmt.Sprintf("calendar provider returned status %d", resp.StatusCode))
	}

	var payload CreateEventResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalScheduling.Code, appErrors.ErrExternalScheduling.Status, "failed to decode calendar response")
	}

	if payload.JoinLink == "" {
		return nil, appErrors.Clone(appErrors.ErrExternalScheduling, "calendar provider returned no join link")
	}

	return &payload, nil
}
