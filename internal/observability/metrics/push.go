package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJob = "runhours"

// Push sends the default registry to a Pushgateway, grouped by run id.
// Batch runs exit before any scrape could reach them.
func Push(ctx context.Context, gatewayURL, runID string) error {
	if gatewayURL == "" {
		return errors.New("metrics: pushgateway url required")
	}
	pusher := push.New(gatewayURL, pushJob).Gatherer(prometheus.DefaultGatherer)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	return pusher.PushContext(ctx)
}
