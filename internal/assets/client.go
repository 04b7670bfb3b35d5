package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"asset-runhours/internal/runhours/application"
	"asset-runhours/internal/runhours/domain"
)

const defaultPageSize = 100

var (
	activeOperationStatuses = []string{"ACTIVE", "Running"}
	communicatingStatus     = "COMMUNICATING"
)

// HTTPError is a non-2xx directory response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("assets: http %d", e.StatusCode)
}

// Client lists monitored assets from the asset directory.
type Client struct {
	baseURL  string
	domain   string
	pageSize int
	zone     domain.Zone
	tokens   oauth2.TokenSource
	client   *http.Client
}

// Options configures the directory client.
type Options struct {
	URL      string
	Domain   string
	PageSize int
	Timeout  time.Duration
	Zone     domain.Zone
	Tokens   oauth2.TokenSource
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// NewClient constructs a directory client.
func NewClient(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("assets: empty url")
	}
	if opts.Tokens == nil {
		return nil, errors.New("assets: nil token source")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.URL, "/"),
		domain:   opts.Domain,
		pageSize: opts.PageSize,
		zone:     opts.Zone,
		tokens:   opts.Tokens,
		client:   httpClient,
	}, nil
}

type filterRequest struct {
	Domain              string   `json:"domain"`
	Offset              int      `json:"offset"`
	PageSize            int      `json:"pageSize"`
	OperationStatus     []string `json:"operationStatus"`
	CommunicationStatus []string `json:"communicationStatus"`
}

type filterResponse struct {
	Data struct {
		Assets []directoryAsset `json:"assets"`
		Total  int              `json:"total"`
	} `json:"data"`
}

type directoryAsset struct {
	ThingCode           string `json:"thingCode"`
	DisplayName         string `json:"displayName"`
	Type                string `json:"type"`
	OperationStatus     string `json:"operationStatus"`
	CommunicationStatus string `json:"communicationStatus"`
	// CreatedOn is epoch milliseconds.
	CreatedOn int64 `json:"createdOn"`
}

// ListAssets pages through the directory and returns active, communicating
// assets that carry a thing code. Pages are 1-based; a short page ends the scan.
func (c *Client) ListAssets(ctx context.Context) ([]application.Asset, error) {
	var out []application.Asset
	for offset := 1; ; offset++ {
		req := filterRequest{
			Domain:              c.domain,
			Offset:              offset,
			PageSize:            c.pageSize,
			OperationStatus:     activeOperationStatuses,
			CommunicationStatus: []string{communicatingStatus},
		}
		var resp filterResponse
		if err := c.doJSON(ctx, http.MethodPost, "", req, &resp); err != nil {
			return nil, fmt.Errorf("assets page %d: %w", offset, err)
		}
		for _, raw := range resp.Data.Assets {
			if asset, ok := c.toAsset(raw); ok {
				out = append(out, asset)
			}
		}
		if len(resp.Data.Assets) < c.pageSize {
			break
		}
	}
	return out, nil
}

func (c *Client) toAsset(raw directoryAsset) (application.Asset, bool) {
	id := strings.TrimSpace(raw.ThingCode)
	if id == "" || raw.CommunicationStatus != communicatingStatus {
		return application.Asset{}, false
	}
	active := false
	for _, status := range activeOperationStatuses {
		if raw.OperationStatus == status {
			active = true
			break
		}
	}
	if !active {
		return application.Asset{}, false
	}
	asset := application.Asset{ID: id, DisplayName: raw.DisplayName}
	if raw.CreatedOn > 0 {
		created := c.zone.DayOf(time.UnixMilli(raw.CreatedOn))
		asset.CreatedOn = &created
	}
	return asset, true
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("assets: token: %w", err)
	}
	token.SetAuthHeader(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// IsRetryable reports whether err is a timeout, a connection failure or a
// 5xx/429 response.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
