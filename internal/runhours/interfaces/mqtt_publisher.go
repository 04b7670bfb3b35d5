package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"asset-runhours/internal/runhours/domain"
)

// DefaultRunHourTopic is used when no topic is configured.
const DefaultRunHourTopic = "energy/runhours/daily"

// RunHourPayload is the MQTT message for one persisted day.
type RunHourPayload struct {
	AssetID       string  `json:"asset_id"`
	LocalDate     string  `json:"local_date"`
	OnDurationMs  int64   `json:"on_duration_ms"`
	OffDurationMs int64   `json:"off_duration_ms"`
	OnHours       float64 `json:"on_hours"`
	PublishedAt   string  `json:"published_at"`
}

// FormatRunHourPayload creates the JSON payload for a record.
func FormatRunHourPayload(rec domain.RunHourRecord, now time.Time) ([]byte, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(RunHourPayload{
		AssetID:       rec.AssetID,
		LocalDate:     rec.LocalDate.String(),
		OnDurationMs:  rec.OnDurationMs,
		OffDurationMs: rec.OffDurationMs,
		OnHours:       rec.OnHours(),
		PublishedAt:   now.UTC().Format(time.RFC3339),
	})
}

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// MQTTPublisher publishes records to an MQTT broker.
type MQTTPublisher struct {
	client paho.Client
	topic  string
	now    func() time.Time
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(opts MQTTOptions) (*MQTTPublisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("runhours mqtt: empty broker")
	}
	if opts.Topic == "" {
		opts.Topic = DefaultRunHourTopic
	}
	if opts.ClientID == "" {
		opts.ClientID = "runhours"
	}
	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	client := paho.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("runhours mqtt: connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("runhours mqtt: connect to broker: %w", err)
	}
	return &MQTTPublisher{client: client, topic: opts.Topic, now: time.Now}, nil
}

// PublishRunHours sends one message per record to <topic>/<asset_id>.
func (p *MQTTPublisher) PublishRunHours(ctx context.Context, records []domain.RunHourRecord) error {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := FormatRunHourPayload(rec, p.now())
		if err != nil {
			return fmt.Errorf("format payload: %w", err)
		}
		// QoS 1: a duplicate delivery is harmless, the key is (asset, day).
		token := p.client.Publish(p.topic+"/"+rec.AssetID, 1, false, payload)
		if !token.WaitTimeout(5 * time.Second) {
			return fmt.Errorf("publish timeout: asset_id=%s day=%s", rec.AssetID, rec.LocalDate)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
