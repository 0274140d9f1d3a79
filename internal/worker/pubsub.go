package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types accepted on the worker subscription.
const (
	JobTypeProviderProbe = "provider_probe"
	JobTypeHealthCheck   = "health_check"
)

// maxJobCities caps an on-demand probe so one message cannot fan out into a
// provider quota problem.
const maxJobCities = 10

// ErrMalformedJob marks messages that can never succeed. They are acked so
// Pub/Sub does not redeliver them.
var ErrMalformedJob = errors.New("malformed job message")

// JobMessage is the JSON payload published to the worker subscription.
// Cities optionally narrows a provider_probe to specific city queries.
type JobMessage struct {
	JobType string   `json:"job_type"`
	Cities  []string `json:"cities,omitempty"`
}

// Dispatcher runs jobs described by message payloads. It does not depend on
// Pub/Sub so tests and tools can drive it directly.
type Dispatcher struct {
	probeJob *ProbeJob
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(probeJob *ProbeJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{probeJob: probeJob, logger: logger}
}

// Process runs the job encoded in data. Unknown job types are ignored.
func (d *Dispatcher) Process(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}

	switch msg.JobType {
	case JobTypeProviderProbe:
		return d.probe(ctx, msg.Cities)
	case JobTypeHealthCheck:
		if result := d.probeJob.RunOne(ctx); result.Failed > 0 {
			return fmt.Errorf("health check failed: %s", result.Errors[0].Error)
		}
		return nil
	default:
		d.logger.Warn().Str("job_type", msg.JobType).Msg("ignoring unknown job type")
		return nil
	}
}

func (d *Dispatcher) probe(ctx context.Context, cities []string) error {
	var result *ProbeResult
	switch {
	case len(cities) == 0:
		result = d.probeJob.Run(ctx)
	case len(cities) > maxJobCities:
		return fmt.Errorf("%w: %d cities requested, at most %d allowed", ErrMalformedJob, len(cities), maxJobCities)
	default:
		targets := TargetsFromQueries(cities)
		if len(targets) == 0 {
			return fmt.Errorf("%w: cities are blank", ErrMalformedJob)
		}
		result = d.probeJob.RunTargets(ctx, targets)
	}

	if !result.Healthy() {
		return fmt.Errorf("too many probe failures: %d/%d", result.Failed, result.Total)
	}
	return nil
}

// PubSubHandler feeds messages from a subscription into a Dispatcher.
type PubSubHandler struct {
	client     *pubsub.Client
	subscriber *pubsub.Subscriber
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler connects to the subscription. Probe runs are slow and
// upstream-bound, so only two messages are leased at a time.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 2
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:     client,
		subscriber: subscriber,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger.With().Str("subscription", cfg.SubscriptionName).Logger(),
	}, nil
}

// Start receives messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().Msg("receiving probe jobs")
	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if Settle(ctx, h.dispatcher, msg.Data, h.logger.With().Str("message_id", msg.ID).Logger()) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// Settle processes one payload and reports whether it should be acked.
// Failed jobs are redelivered; malformed ones are dropped.
func Settle(ctx context.Context, d *Dispatcher, data []byte, log zerolog.Logger) bool {
	start := time.Now()
	err := d.Process(ctx, data)

	switch {
	case err == nil:
		log.Info().Dur("duration", time.Since(start)).Msg("job completed")
		return true
	case errors.Is(err, ErrMalformedJob):
		log.Warn().Err(err).Msg("dropping malformed job")
		return true
	default:
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed, will be redelivered")
		return false
	}
}
