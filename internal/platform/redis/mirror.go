package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"drivewatch/internal/dispatch"
	"drivewatch/internal/location"
)

// Mirror replicates alerts and driver state to Redis so external dashboards
// can follow the system without connecting to the process directly. Alerts
// go to a facility-scoped pub/sub channel plus a firehose channel; driver
// locations land in a short-lived hash per driver.
type Mirror struct {
	client *Client
}

// NewMirror wraps a connected client. The client must be non-nil.
func NewMirror(client *Client) *Mirror {
	return &Mirror{client: client}
}

// MirrorAlert publishes the alert event payload to the facility channel
// (when resolved) and to the global alerts channel.
func (m *Mirror) MirrorAlert(ctx context.Context, facilityID *int64, event dispatch.AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	pipe := m.client.Pipeline()
	pipe.Publish(ctx, "drivewatch:alerts", payload)
	if facilityID != nil {
		pipe.Publish(ctx, fmt.Sprintf("drivewatch:facility:%d:alerts", *facilityID), payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis alert publish failed: %w", err)
	}
	return nil
}

// MirrorLocation stores the driver's latest position under a TTL'd key and
// publishes it on the locations channel.
func (m *Mirror) MirrorLocation(ctx context.Context, loc location.Location) error {
	payload, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}

	key := fmt.Sprintf("drivewatch:driver:%s:location", loc.DriverID)
	pipe := m.client.Pipeline()
	pipe.Set(ctx, key, payload, 30*time.Second)
	pipe.Publish(ctx, "drivewatch:locations", payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis location publish failed: %w", err)
	}
	return nil
}
