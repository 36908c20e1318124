package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clubdues/clubdues/pkg/api"
	"github.com/clubdues/clubdues/pkg/audit"
	"github.com/clubdues/clubdues/pkg/billing"
	"github.com/clubdues/clubdues/pkg/httputil"
	"github.com/clubdues/clubdues/pkg/orgs"
)

// APIError is a non-2xx reply of the billing API
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d", e.Status)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if len(e.Details) > 0 {
		parts := make([]string, 0, len(e.Details))
		for k, v := range e.Details {
			parts = append(parts, k+"="+v)
		}
		msg += " [" + strings.Join(parts, ", ") + "]"
	}
	return msg
}

// Client talks to the clubdues HTTP API
type Client struct {
	baseURL string
	actor   string
	http    *http.Client
}

// NewClient creates a new Client for the server at baseURL
func NewClient(baseURL, actor string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		actor:   actor,
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateBatch creates the batch of billingMonth (YYYY-MM-01)
func (c *Client) CreateBatch(ctx context.Context, orgID uuid.UUID, billingMonth string, notes *string) (*billing.CreateBatchResult, error) {
	req := api.CreateBatchRequest{BillingMonth: billingMonth, Notes: notes}
	var result billing.CreateBatchResult
	if err := c.do(ctx, http.MethodPost, batchesPath(orgID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListBatches lists the organization's batches, newest first
func (c *Client) ListBatches(ctx context.Context, orgID uuid.UUID) ([]*billing.PaymentBatch, error) {
	var resp struct {
		Batches []*billing.PaymentBatch `json:"batches"`
	}
	if err := c.do(ctx, http.MethodGet, batchesPath(orgID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Batches, nil
}

// ViewBatch returns a batch with its payments
func (c *Client) ViewBatch(ctx context.Context, orgID, batchID uuid.UUID) (*billing.BatchView, error) {
	var view billing.BatchView
	if err := c.do(ctx, http.MethodGet, batchesPath(orgID)+"/"+batchID.String(), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ExportSEPA downloads the pain.008 document of a batch. The file name is taken from the
// Content-Disposition header.
func (c *Client) ExportSEPA(ctx context.Context, orgID, batchID uuid.UUID) (string, []byte, error) {
	resp, err := c.send(ctx, http.MethodGet, batchesPath(orgID)+"/"+batchID.String()+"/sepa", nil)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, decodeAPIError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read export: %w", err)
	}

	fileName := "sepa-" + batchID.String() + ".xml"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		fileName = params["filename"]
	}
	return fileName, body, nil
}

// GetSettings returns the creditor profile of an organization
func (c *Client) GetSettings(ctx context.Context, orgID uuid.UUID) (*orgs.CreditorSettings, error) {
	var settings orgs.CreditorSettings
	if err := c.do(ctx, http.MethodGet, settingsPath(orgID), nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// PutSettings replaces the creditor profile of an organization
func (c *Client) PutSettings(ctx context.Context, orgID uuid.UUID, req *api.SettingsRequest) (*orgs.CreditorSettings, error) {
	var settings orgs.CreditorSettings
	if err := c.do(ctx, http.MethodPut, settingsPath(orgID), req, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// ListAuditEvents returns the newest audit events of an organization
func (c *Client) ListAuditEvents(ctx context.Context, orgID uuid.UUID, eventTypes []string, limit int) ([]*audit.AuditEvent, error) {
	query := url.Values{}
	for _, et := range eventTypes {
		query.Add("event_type", et)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	path := "/orgs/" + orgID.String() + "/audit-events"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp struct {
		Events []*audit.AuditEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		req.Header.Set(api.ActorHeader, c.actor)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body httputil.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
		apiErr.Details = body.Details
	}
	return apiErr
}

func batchesPath(orgID uuid.UUID) string {
	return "/orgs/" + orgID.String() + "/billing/batches"
}

func settingsPath(orgID uuid.UUID) string {
	return "/orgs/" + orgID.String() + "/settings/sepa"
}
