package assets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"asset-runhours/internal/runhours/domain"
)

func TestListAssetsPaginatesAndFilters(t *testing.T) {
	zone, err := domain.ParseZone("+04:00")
	if err != nil {
		t.Fatalf("zone: %v", err)
	}
	// 2024-01-09T21:00:00Z is 2024-01-10 01:00 at +04:00.
	createdMs := time.Date(2024, 1, 9, 21, 0, 0, 0, time.UTC).UnixMilli()

	var (
		mu      sync.Mutex
		offsets []int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req filterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		offsets = append(offsets, req.Offset)
		mu.Unlock()

		var page []directoryAsset
		switch req.Offset {
		case 1:
			page = []directoryAsset{
				{ThingCode: "AC_001", DisplayName: "Chiller 1", OperationStatus: "ACTIVE", CommunicationStatus: "COMMUNICATING", CreatedOn: createdMs},
				{ThingCode: "AC_002", OperationStatus: "INACTIVE", CommunicationStatus: "COMMUNICATING"},
			}
		case 2:
			page = []directoryAsset{
				{ThingCode: "", OperationStatus: "ACTIVE", CommunicationStatus: "COMMUNICATING"},
				{ThingCode: "AC_003", OperationStatus: "Running", CommunicationStatus: "COMMUNICATING"},
			}
		case 3:
			page = []directoryAsset{
				{ThingCode: "AC_004", OperationStatus: "ACTIVE", CommunicationStatus: "NOT_COMMUNICATING"},
			}
		}
		var resp filterResponse
		resp.Data.Assets = page
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewClient(Options{
		URL:      server.URL,
		Domain:   "lremcofc",
		PageSize: 2,
		Zone:     zone,
		Tokens:   oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret", TokenType: "Bearer"}),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	assets, err := client.ListAssets(context.Background())
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(offsets) != 3 {
		t.Fatalf("expected 3 pages, got %v", offsets)
	}
	if len(assets) != 2 || assets[0].ID != "AC_001" || assets[1].ID != "AC_003" {
		t.Fatalf("unexpected assets: %+v", assets)
	}
	if assets[0].CreatedOn == nil || *assets[0].CreatedOn != domain.NewDate(2024, 1, 10) {
		t.Fatalf("createdOn should map to the local day: %+v", assets[0].CreatedOn)
	}
	if assets[1].CreatedOn != nil {
		t.Fatalf("missing createdOn should stay nil")
	}
}

func TestListAssetsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(Options{
		URL:    server.URL,
		Tokens: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret"}),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.ListAssets(context.Background())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 HTTPError, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("503 should be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad request", &HTTPError{StatusCode: http.StatusBadRequest}, false},
		{"unauthorized", &HTTPError{StatusCode: http.StatusUnauthorized}, false},
		{"too many requests", &HTTPError{StatusCode: http.StatusTooManyRequests}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", errors.New("decode failed"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestNewClientValidates(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatalf("expected empty url error")
	}
	if _, err := NewClient(Options{URL: "http://localhost"}); err == nil {
		t.Fatalf("expected nil token source error")
	}
}
