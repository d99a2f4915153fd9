// Package netsuite talks to the SuiteTalk REST record API.
package netsuite

import (
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

	"github.com/chandanyadavsde/vms-v2/internal/config"
	"github.com/chandanyadavsde/vms-v2/internal/models"
	"github.com/dghubble/oauth1"
)

// maxErrorBody caps how much of an error response is kept for logging.
const maxErrorBody = 4 << 10

// Client reads one record type from NetSuite
type Client struct {
	baseURL    string
	recordType string
	http       *http.Client
}

// ListPage is one page of the record listing
type ListPage struct {
	IDs     []string
	HasMore bool
}

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("netsuite api error %d on %s %s: %s", e.StatusCode, e.Method, e.URL, e.Body)
}

// NewClient builds a client that signs every request with OAuth 1.0a
// token-based authentication (HMAC-SHA256, with realm).
func NewClient(cfg config.NetSuiteConfig) (*Client, error) {
	var missing []string
	for _, cred := range []struct{ name, value string }{
		{"CONSUMER_KEY", cfg.ConsumerKey},
		{"CONSUMER_SECRET", cfg.ConsumerSecret},
		{"TOKEN_ID", cfg.TokenID},
		{"TOKEN_SECRET", cfg.TokenSecret},
	} {
		if strings.TrimSpace(cred.value) == "" {
			missing = append(missing, cred.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("netsuite credentials missing: %s", strings.Join(missing, ", "))
	}

	oauthCfg := &oauth1.Config{
		ConsumerKey:    cfg.ConsumerKey,
		ConsumerSecret: cfg.ConsumerSecret,
		Realm:          cfg.Realm,
		Signer:         &oauth1.HMAC256Signer{ConsumerSecret: cfg.ConsumerSecret},
	}
	token := oauth1.NewToken(cfg.TokenID, cfg.TokenSecret)

	httpClient := oauthCfg.Client(context.Background(), token)
	httpClient.Timeout = cfg.Timeout
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 30 * time.Second
	}

	return NewClientWithHTTP(cfg.BaseURL, cfg.RecordType, httpClient), nil
}

// NewClientWithHTTP builds a client on a caller-provided http.Client, which
// is responsible for authentication.
func NewClientWithHTTP(baseURL, recordType string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		recordType: recordType,
		http:       httpClient,
	}
}

// RecordURL returns the URL of a single record, or of the collection when
// id is empty.
func (c *Client) RecordURL(id string) string {
	u := c.baseURL + "/" + c.recordType
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

type listResponse struct {
	Items []struct {
		ID json.RawMessage `json:"id"`
	} `json:"items"`
	HasMore bool `json:"hasMore"`
}

// ListIDs fetches one page of record ids
func (c *Client) ListIDs(ctx context.Context, limit, offset int) (ListPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	endpoint := c.RecordURL("") + "?" + params.Encode()

	var parsed listResponse
	if err := c.getJSON(ctx, endpoint, &parsed); err != nil {
		return ListPage{}, err
	}

	page := ListPage{IDs: make([]string, 0, len(parsed.Items)), HasMore: parsed.HasMore}
	for _, item := range parsed.Items {
		var v models.NetSuiteValue
		_ = v.UnmarshalJSON(item.ID)
		if id := v.Text(); id != nil && *id != "" {
			page.IDs = append(page.IDs, *id)
		}
	}
	return page, nil
}

// Get fetches one full record by internal id
func (c *Client) Get(ctx context.Context, id string) (models.NetSuiteRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("netsuite: empty record id")
	}
	var record models.NetSuiteRecord
	if err := c.getJSON(ctx, c.RecordURL(id), &record); err != nil {
		return nil, err
	}
	return record, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("netsuite request %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodGet,
			URL:        endpoint,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode netsuite response: %w", err)
	}
	return nil
}
