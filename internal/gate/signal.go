package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"parking-spots/internal/logging"
	"parking-spots/internal/parking"
)

// LogSignaler is used when no barrier controller is attached. It records
// what the barrier would have been told.
type LogSignaler struct{}

func NewLogSignaler() *LogSignaler {
	return &LogSignaler{}
}

func (s *LogSignaler) Signal(ctx context.Context, cmd parking.GateCommand) error {
	logging.Info(ctx).
		Int64("spot_id", cmd.SpotID).
		Str("place", cmd.Place).
		Str("command", string(cmd.Action)).
		Str("vehicle_type", cmd.VehicleType.String()).
		Str("color", cmd.Color).
		Str("source", string(cmd.Source)).
		Msg("gate command")
	return nil
}

// HTTPSignaler posts gate commands as JSON to a barrier controller and
// retries transient failures with exponential backoff. Each attempt is
// bounded by attemptTimeout and the whole call by maxElapsed.
type HTTPSignaler struct {
	url             string
	client          *http.Client
	maxTries        uint
	initialInterval time.Duration
	attemptTimeout  time.Duration
	maxElapsed      time.Duration
}

func NewHTTPSignaler(url string, maxTries int) *HTTPSignaler {
	if maxTries < 1 {
		maxTries = 1
	}
	return &HTTPSignaler{
		url: url,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxTries:        uint(maxTries),
		initialInterval: 200 * time.Millisecond,
		attemptTimeout:  2 * time.Second,
		maxElapsed:      5 * time.Second,
	}
}

func (s *HTTPSignaler) Signal(ctx context.Context, cmd parking.GateCommand) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode gate command: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialInterval
	bo.MaxInterval = 2 * time.Second

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := s.post(ctx, body)
		if err != nil {
			logging.Debug(ctx).Err(err).Int("attempt", attempt).Msg("gate signal attempt failed")
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(s.maxTries),
		backoff.WithMaxElapsedTime(s.maxElapsed),
	)
	if err != nil {
		return fmt.Errorf("signal gate controller after %d attempts: %w", attempt, err)
	}
	return nil
}

func (s *HTTPSignaler) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("gate controller returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return backoff.Permanent(fmt.Errorf("gate controller rejected command: %d", resp.StatusCode))
	}
	return nil
}
