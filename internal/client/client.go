// Package client implements the remote, disconnected side of the contact
// version protocol over HTTP. It mirrors the repository surface — Load,
// LoadForUpdate, Add, Update, Delete, List — against a contact vault server,
// carrying the version token through the same ConcurrencyEnvelope the server
// speaks, so a caller can load a record on one connection, hold it offline,
// and commit the edit later against whichever server replica answers.
//
// Error mapping is deliberate: a 409 decodes into *ConflictError carrying the
// CURRENT stored record and token (the caller merges and re-presents that
// token), a 404 maps to ErrNotFound, and any failure where the response never
// arrived wraps into *TransportError. TransportError on a write means the
// outcome is AMBIGUOUS — the server may or may not have applied it — so the
// caller must re-Load and inspect before retrying; blindly resubmitting the
// old token would at worst surface a spurious conflict, never a double write.
package client

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

	"github.com/contact-vault/contact-vault/internal/api/contacts"
	"github.com/contact-vault/contact-vault/internal/db/models"
	"github.com/contact-vault/contact-vault/internal/occ"
)

// ErrNotFound reports that the server has no contact with the requested
// identity. On Update this includes the record having been concurrently
// deleted; there is nothing left to merge against.
var ErrNotFound = errors.New("contact not found")

// ConflictError reports that the server rejected a conditional write because
// the presented version token was stale. Current and CurrentVersion carry the
// winning writer's state; a retry must re-present CurrentVersion.
type ConflictError struct {
	Attempted      *models.Contact
	Current        *models.Contact
	CurrentVersion occ.Version
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("optimistic concurrency conflict on contact %d", e.Attempted.ID)
}

// TransportError reports that no usable response arrived. For reads this is
// just a failure; for writes the outcome is ambiguous and the caller must
// re-Load before deciding whether to retry.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s (outcome unknown, re-load before retrying): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError reports a 400 carrying field-level problems.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// Client is a remote contact repository speaking the /api/v1 protocol.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	token string
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithToken sets the bearer token used to attribute writes to an actor.
// Without one the server records changes against the anonymous actor.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// ListOptions mirror the server's grid query parameters.
type ListOptions struct {
	FilterColumn string
	FilterText   string
	SortColumn   string
	Ascending    bool
	Page         int
	PerPage      int
}

// AuditOptions filter a contact's audit trail.
type AuditOptions struct {
	Action  string
	Actor   string
	Start   time.Time
	End     time.Time
	Page    int
	PerPage int
}

// Load fetches one contact. Returns ErrNotFound when absent.
func (c *Client) Load(ctx context.Context, id int64) (*models.Contact, error) {
	var contact models.Contact
	if err := c.get(ctx, fmt.Sprintf("/api/v1/contacts/%d", id), nil, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

// LoadForUpdate fetches one contact together with the version token an
// Update or conditional Delete must later present.
func (c *Client) LoadForUpdate(ctx context.Context, id int64) (*models.VersionedContact, error) {
	var versioned models.VersionedContact
	query := url.Values{"forUpdate": {"true"}}
	if err := c.get(ctx, fmt.Sprintf("/api/v1/contacts/%d", id), query, &versioned); err != nil {
		return nil, err
	}
	return &versioned, nil
}

// Add creates a contact. The contact must not carry an identity; the
// server-assigned one is populated in the returned record.
func (c *Client) Add(ctx context.Context, contact *models.Contact) (*models.VersionedContact, error) {
	body, err := json.Marshal(contact)
	if err != nil {
		return nil, fmt.Errorf("failed to encode contact: %w", err)
	}

	resp, err := c.do(ctx, "POST", "/api/v1/contacts", nil, body)
	if err != nil {
		return nil, &TransportError{Op: "add", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeFailure(resp, nil)
	}

	var versioned models.VersionedContact
	if err := json.NewDecoder(resp.Body).Decode(&versioned); err != nil {
		return nil, &TransportError{Op: "add", Err: err}
	}
	return &versioned, nil
}

// Update commits an edited contact conditionally on the version it was
// loaded with. A stale token surfaces as *ConflictError carrying the current
// record; a concurrent delete surfaces as ErrNotFound.
func (c *Client) Update(ctx context.Context, contact *models.Contact, expected occ.Version) error {
	envelope := contacts.ConcurrencyEnvelope{Contact: contact, VersionToken: expected}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	resp, err := c.do(ctx, "PUT", fmt.Sprintf("/api/v1/contacts/%d", contact.ID), nil, body)
	if err != nil {
		return &TransportError{Op: "update", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return c.decodeFailure(resp, contact)
}

// Delete removes a contact. With a nil expected version the delete is
// unconditional (last write wins); with one it is conditional and a stale
// token surfaces as *ConflictError. Returns false when the contact was
// already gone.
func (c *Client) Delete(ctx context.Context, id int64, expected occ.Version) (bool, error) {
	var body []byte
	if !expected.IsZero() {
		var err error
		body, err = json.Marshal(contacts.DeleteRequest{VersionToken: expected})
		if err != nil {
			return false, fmt.Errorf("failed to encode delete request: %w", err)
		}
	}

	resp, err := c.do(ctx, "DELETE", fmt.Sprintf("/api/v1/contacts/%d", id), nil, body)
	if err != nil {
		return false, &TransportError{Op: "delete", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, c.decodeFailure(resp, nil)
	}
}

// List fetches one page of contacts plus the total match count.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]models.Contact, int, error) {
	query := url.Values{}
	if opts.FilterColumn != "" {
		query.Set("filterColumn", opts.FilterColumn)
		query.Set("filterText", opts.FilterText)
	}
	if opts.SortColumn != "" {
		query.Set("sortColumn", opts.SortColumn)
		query.Set("ascending", strconv.FormatBool(opts.Ascending))
	}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(opts.PerPage))
	}

	var page struct {
		Contacts   []models.Contact `json:"contacts"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := c.get(ctx, "/api/v1/contacts", query, &page); err != nil {
		return nil, 0, err
	}
	return page.Contacts, page.Pagination.Total, nil
}

// AuditTrail fetches one page of a contact's audit entries, newest first.
func (c *Client) AuditTrail(ctx context.Context, id int64, opts AuditOptions) ([]*models.ContactAudit, int, error) {
	query := url.Values{}
	if opts.Action != "" {
		query.Set("action", opts.Action)
	}
	if opts.Actor != "" {
		query.Set("actor", opts.Actor)
	}
	if !opts.Start.IsZero() {
		query.Set("start", opts.Start.Format(time.RFC3339))
	}
	if !opts.End.IsZero() {
		query.Set("end", opts.End.Format(time.RFC3339))
	}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(opts.PerPage))
	}

	var page struct {
		Audits     []*models.ContactAudit `json:"audits"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/v1/contacts/%d/audit", id), query, &page); err != nil {
		return nil, 0, err
	}
	return page.Audits, page.Pagination.Total, nil
}

// get performs a read and decodes the 200 body into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	resp, err := c.do(ctx, "GET", path, query, nil)
	if err != nil {
		return &TransportError{Op: "get " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.decodeFailure(resp, nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: "get " + path, Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	requestURL := c.BaseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.HTTPClient.Do(req)
}

// decodeFailure maps a non-success response onto the error taxonomy.
// attempted is threaded into ConflictError for 409s from writes.
func (c *Client) decodeFailure(resp *http.Response, attempted *models.Contact) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound

	case http.StatusConflict:
		var envelope contacts.ConcurrencyEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return &TransportError{Op: "decode conflict", Err: err}
		}
		if attempted == nil {
			attempted = envelope.Contact
		}
		return &ConflictError{
			Attempted:      attempted,
			Current:        envelope.DatabaseContact,
			CurrentVersion: envelope.VersionToken,
		}

	case http.StatusBadRequest:
		var problem struct {
			Error   string   `json:"error"`
			Details []string `json:"details"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&problem); err == nil && len(problem.Details) > 0 {
			return &ValidationError{Problems: problem.Details}
		}
		if problem.Error != "" {
			return fmt.Errorf("request rejected: %s", problem.Error)
		}
		return errors.New("request rejected")

	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
}
