package partnerlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Partnerline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Proposal represents the API proposal model (partial). Content is left raw.
type Proposal struct {
	ID                 string          `json:"id"`
	ProposerID         string          `json:"proposer_id"`
	RecipientID        string          `json:"recipient_id"`
	ProposerName       string          `json:"proposer_name"`
	RecipientName      string          `json:"recipient_name"`
	Title              string          `json:"title"`
	Summary            string          `json:"summary"`
	Status             string          `json:"status"`
	AwaitingParty      *string         `json:"awaiting_party"`
	Content            json.RawMessage `json:"content"`
	Messages           []Message       `json:"messages"`
	UnreadForProposer  bool            `json:"unread_for_proposer"`
	UnreadForRecipient bool            `json:"unread_for_recipient"`
	Version            int64           `json:"version"`
	Role               string          `json:"role"`
	PermittedActions   []string        `json:"permitted_actions"`
	UpdatedAt          string          `json:"updated_at"`
}

type Message struct {
	Seq        int    `json:"seq"`
	Kind       string `json:"kind"`
	SenderRole string `json:"sender_role"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at"`
}

// ListItem is a row of the proposals list.
type ListItem struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	PartnerID     string  `json:"partner_id"`
	PartnerName   string  `json:"partner_name"`
	Status        string  `json:"status"`
	AwaitingParty *string `json:"awaiting_party"`
	Role          string  `json:"role"`
	Unread        bool    `json:"unread"`
	UpdatedAt     string  `json:"updated_at"`
}

type Counts struct {
	Tabs   map[string]int `json:"tabs"`
	Unread int            `json:"unread"`
}

type Report struct {
	ID         string `json:"id"`
	ProposalID string `json:"proposal_id"`
	ReporterID string `json:"reporter_id"`
	Reason     string `json:"reason"`
	Details    string `json:"details,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateProposal is the request body of CreateProposal. Content is any value
// that marshals to the proposal content document.
type CreateProposal struct {
	ID          string `json:"id,omitempty"`
	RecipientID string `json:"recipient_id"`
	Title       string `json:"title"`
	Summary     string `json:"summary,omitempty"`
	Message     string `json:"message,omitempty"`
	Content     any    `json:"content"`
}

// APIError wraps non-2xx responses. Code is taken from the error envelope
// when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given envelope code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// CreateProposal submits a proposal as the authenticated business.
func (c *Client) CreateProposal(ctx context.Context, in CreateProposal) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, "v0/proposals", in, 0, &resp)
	return resp, err
}

// GetProposal returns the detail and marks it read for the caller.
func (c *Client) GetProposal(ctx context.Context, id string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodGet, proposalPath(id, ""), nil, 0, &resp)
	return resp, err
}

// ListProposals lists the caller's proposals under tab, optionally filtered by q.
func (c *Client) ListProposals(ctx context.Context, tab, q string) ([]ListItem, error) {
	params := url.Values{}
	if tab != "" {
		params.Set("tab", tab)
	}
	if q != "" {
		params.Set("q", q)
	}
	endpoint := "v0/proposals"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp struct {
		Items []ListItem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, 0, &resp)
	return resp.Items, err
}

func (c *Client) Counts(ctx context.Context) (Counts, error) {
	var resp Counts
	err := c.do(ctx, http.MethodGet, "v0/proposals/counts", nil, 0, &resp)
	return resp, err
}

// Act posts accept, decline or cancel. A non-zero version is sent as If-Match.
func (c *Client) Act(ctx context.Context, id, action, note string, version int64) (Proposal, error) {
	var body any
	if note != "" {
		body = map[string]string{"note": note}
	}
	var resp Proposal
	err := c.do(ctx, http.MethodPost, proposalPath(id, action), body, version, &resp)
	return resp, err
}

// Negotiate replaces the proposal content.
func (c *Client) Negotiate(ctx context.Context, id string, content any, summary string, version int64) (Proposal, error) {
	body := map[string]any{"content": content}
	if summary != "" {
		body["summary"] = summary
	}
	var resp Proposal
	err := c.do(ctx, http.MethodPost, proposalPath(id, "negotiate"), body, version, &resp)
	return resp, err
}

func (c *Client) SendMessage(ctx context.Context, id, content string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, proposalPath(id, "messages"), map[string]string{"content": content}, 0, &resp)
	return resp, err
}

func (c *Client) Report(ctx context.Context, id, reason, details string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPost, proposalPath(id, "reports"), map[string]string{"reason": reason, "details": details}, 0, &resp)
	return resp, err
}

// Block blocks the other party of proposal id.
func (c *Client) Block(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, proposalPath(id, "block"), nil, 0, nil)
}

func (c *Client) Unblock(ctx context.Context, businessID string) error {
	return c.do(ctx, http.MethodDelete, "v0/blocks/"+url.PathEscape(businessID), nil, 0, nil)
}

// EventsPage returns a paginated event listing. Moderators only.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, 0, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, version int64, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if version > 0 {
		req.Header.Set("If-Match", strconv.Quote(strconv.FormatInt(version, 10)))
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func proposalPath(id, action string) string {
	p := "v0/proposals/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
