package roadworksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roadwork/internal/consultation"
	"roadwork/internal/domain"
	"roadwork/internal/schedule"
	"roadwork/internal/workflow"
)

// Client is a Roadwork HTTP API client. It satisfies the need assignment
// coordinator's Remote so a board can be driven against a server.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// UserID is sent as X-User-Id when no token is set.
	UserID     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Board mirrors the activity board response.
type Board struct {
	Activity      domain.Activity        `json:"activity"`
	Needs         []schedule.NeedMarkers `json:"needs"`
	DueDate       schedule.DueDate       `json:"due_date"`
	StatusOptions []workflow.Option      `json:"status_options"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeAPIError(status int, body []byte) *APIError {
	out := &APIError{StatusCode: status}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		out.Code = env.Error.Code
		out.Message = env.Error.Message
		out.Details = env.Error.Details
	}
	if out.Code == "" {
		out.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
		if out.Code == "" {
			out.Code = "error"
		}
	}
	if out.Message == "" {
		out.Message = strings.TrimSpace(string(body))
		if out.Message == "" {
			out.Message = fmt.Sprintf("status %d", status)
		}
	}
	return out
}

// NeedInput is the payload for CreateNeed.
type NeedInput struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name"`
	OrdererID       string `json:"orderer_id,omitempty"`
	OrgUnit         string `json:"org_unit,omitempty"`
	FinishEarlyTo   string `json:"finish_early_to"`
	FinishOptimumTo string `json:"finish_optimum_to"`
	FinishLateTo    string `json:"finish_late_to"`
}

func (c *Client) CreateNeed(ctx context.Context, in NeedInput) (domain.Need, error) {
	var resp domain.Need
	err := c.do(ctx, http.MethodPost, "needs", in, &resp)
	return resp, err
}

func (c *Client) GetNeed(ctx context.Context, id string) (domain.Need, error) {
	var resp domain.Need
	err := c.do(ctx, http.MethodGet, "needs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListNeeds lists needs, optionally filtered by relation.
func (c *Client) ListNeeds(ctx context.Context, relation domain.RelationType) ([]domain.Need, error) {
	endpoint := "needs"
	if relation != "" {
		endpoint += "?relation=" + url.QueryEscape(string(relation))
	}
	var resp struct {
		Items []domain.Need `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// UpdateNeed stores the need's relation, activity and primary flag.
func (c *Client) UpdateNeed(ctx context.Context, n domain.Need) (domain.Need, error) {
	body := map[string]any{
		"activity_relation_type": string(n.ActivityRelationType),
		"activity_id":            n.ActivityID,
		"is_primary":             n.IsPrimary,
	}
	if n.Name != "" {
		body["name"] = n.Name
	}
	var resp domain.Need
	err := c.do(ctx, http.MethodPut, "needs/"+url.PathEscape(n.ID), body, &resp)
	return resp, err
}

// RegisterNeed removes the need from its activity and marks it registered.
func (c *Client) RegisterNeed(ctx context.Context, id string) (domain.Need, error) {
	var resp domain.Need
	err := c.do(ctx, http.MethodPost, "needs/"+url.PathEscape(id)+"/register", nil, &resp)
	return resp, err
}

// ActivityInput is the payload for CreateActivity.
type ActivityInput struct {
	ID                  string   `json:"id,omitempty"`
	Name                string   `json:"name"`
	StartOfConstruction *string  `json:"start_of_construction,omitempty"`
	EndOfConstruction   *string  `json:"end_of_construction,omitempty"`
	DateConsultEnd      *string  `json:"date_consult_end,omitempty"`
	DateReportEnd       *string  `json:"date_report_end,omitempty"`
	DateInfoEnd         *string  `json:"date_info_end,omitempty"`
	IsPrivate           bool     `json:"is_private,omitempty"`
	NeedIDs             []string `json:"need_ids,omitempty"`
	PrimaryNeedID       string   `json:"primary_need_id,omitempty"`
}

func (c *Client) CreateActivity(ctx context.Context, in ActivityInput) (domain.Activity, error) {
	var resp domain.Activity
	err := c.do(ctx, http.MethodPost, "activities", in, &resp)
	return resp, err
}

func (c *Client) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	var resp domain.Activity
	err := c.do(ctx, http.MethodGet, "activities/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) ListActivities(ctx context.Context, status string) ([]domain.Activity, error) {
	endpoint := "activities"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []domain.Activity `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// ActivityNeeds returns the needs assigned to an activity, primary first.
func (c *Client) ActivityNeeds(ctx context.Context, activityID string) ([]domain.Need, error) {
	var resp struct {
		Items []domain.Need `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "activities/"+url.PathEscape(activityID)+"/needs", nil, &resp)
	return resp.Items, err
}

// SetStatus moves an activity to status. force skips the transition guard.
func (c *Client) SetStatus(ctx context.Context, activityID string, status workflow.Status, force bool) (domain.Activity, error) {
	endpoint := "activities/" + url.PathEscape(activityID) + "/status"
	if force {
		endpoint += "?force=true"
	}
	var resp domain.Activity
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": string(status)}, &resp)
	return resp, err
}

func (c *Client) Board(ctx context.Context, activityID string) (Board, error) {
	var resp Board
	err := c.do(ctx, http.MethodGet, "activities/"+url.PathEscape(activityID)+"/board", nil, &resp)
	return resp, err
}

// Consultations lists the inputs of phase, or of the current status when
// phase is empty.
func (c *Client) Consultations(ctx context.Context, activityID, phase string) (consultation.View, error) {
	endpoint := "activities/" + url.PathEscape(activityID) + "/consultations"
	if phase != "" {
		endpoint += "?phase=" + url.QueryEscape(phase)
	}
	var resp consultation.View
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) SubmitConsultation(ctx context.Context, activityID string, d consultation.Draft) (domain.ConsultationInput, error) {
	body := map[string]any{
		"orderer_feedback": d.OrdererFeedback,
		"manager_feedback": d.ManagerFeedback,
		"decline":          d.Decline,
		"valuation":        d.Valuation,
	}
	var resp domain.ConsultationInput
	err := c.do(ctx, http.MethodPost, "activities/"+url.PathEscape(activityID)+"/consultations", body, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, activityID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if activityID != "" {
		q.Set("activity_id", activityID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserID != "":
		req.Header.Set("X-User-Id", c.UserID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return decodeAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	basePath := strings.Trim(c.BasePath, "/")
	if basePath == "" {
		basePath = "v1"
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + basePath + "/" + strings.TrimLeft(endpoint, "/")
}
