package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"strings"
	"testing"
	"time"

	"asset-runhours/internal/runhours/domain"
)

func TestFormatRunHourPayload(t *testing.T) {
	rec, err := domain.NewRunHourRecord("AC_001", domain.NewDate(2024, 1, 10), 5_400_000)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	now := time.Date(2024, 1, 11, 1, 0, 0, 0, time.UTC)
	data, err := FormatRunHourPayload(rec, now)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	var payload RunHourPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.AssetID != "AC_001" || payload.LocalDate != "2024-01-10" || payload.OnHours != 1.5 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.OnDurationMs+payload.OffDurationMs != domain.MsPerDay {
		t.Fatalf("durations must cover the day: %+v", payload)
	}
	if payload.PublishedAt != "2024-01-11T01:00:00Z" {
		t.Fatalf("published_at mismatch: %s", payload.PublishedAt)
	}

	rec.OffDurationMs = 0
	if _, err := FormatRunHourPayload(rec, now); err == nil {
		t.Fatalf("expected invalid record error")
	}
}

func TestLoggingPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLoggingPublisher(log.New(&buf, "", 0))
	rec, _ := domain.NewRunHourRecord("AC_001", domain.NewDate(2024, 1, 10), 3_600_000)
	if err := p.PublishRunHours(context.Background(), []domain.RunHourRecord{rec}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.Contains(buf.String(), "asset_id=AC_001 day=2024-01-10 on_ms=3600000") {
		t.Fatalf("unexpected log: %q", buf.String())
	}

	var nilPublisher *LoggingPublisher
	if err := nilPublisher.PublishRunHours(context.Background(), nil); err == nil {
		t.Fatalf("expected nil publisher error")
	}
}
