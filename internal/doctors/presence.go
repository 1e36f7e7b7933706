package doctors

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mindline/platform/pkg/logging"
)

// Presence tracks doctor heartbeats in Redis. A doctor whose heartbeat key
// has expired is considered gone and gets flipped offline by Sweep, so a
// closed laptop does not leave a phantom doctor in the dispatch pool.
type Presence struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	logger *logging.Logger
}

// NewPresence creates a presence tracker.
func NewPresence(client *redis.Client, ttl time.Duration, logger *logging.Logger) *Presence {
	if client == nil {
		panic("doctors: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Presence{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("mindline.internal.doctors.presence"),
		logger: logger,
	}
}

// Heartbeat refreshes the doctor's liveness key.
func (p *Presence) Heartbeat(ctx context.Context, doctorID string) error {
	ctx, span := p.tracer.Start(ctx, "doctors.heartbeat")
	defer span.End()

	if err := p.redis.Set(ctx, presenceKey(doctorID), time.Now().UTC().Format(time.RFC3339), p.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("doctors: failed to record heartbeat: %w", err)
	}
	return nil
}

// Alive reports whether the doctor's heartbeat key is still live.
func (p *Presence) Alive(ctx context.Context, doctorID string) (bool, error) {
	ctx, span := p.tracer.Start(ctx, "doctors.alive")
	defer span.End()

	n, err := p.redis.Exists(ctx, presenceKey(doctorID)).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("doctors: failed to check heartbeat: %w", err)
	}
	return n > 0, nil
}

// Sweep flips offline every online doctor whose heartbeat has expired.
// Returns the IDs that were swept.
func (p *Presence) Sweep(ctx context.Context, registry Registry) ([]string, error) {
	ctx, span := p.tracer.Start(ctx, "doctors.sweep")
	defer span.End()

	online, err := registry.ListOnline(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("doctors: sweep list failed: %w", err)
	}

	var swept []string
	for _, doc := range online {
		alive, err := p.Alive(ctx, doc.ID)
		if err != nil {
			p.logger.Error("presence: liveness check failed", "error", err, "doctor_id", doc.ID)
			continue
		}
		if alive {
			continue
		}
		if err := registry.SetOnline(ctx, doc.ID, false); err != nil {
			p.logger.Error("presence: failed to mark doctor offline", "error", err, "doctor_id", doc.ID)
			continue
		}
		p.logger.Info("presence: doctor heartbeat expired, marked offline", "doctor_id", doc.ID)
		swept = append(swept, doc.ID)
	}
	return swept, nil
}

// Run sweeps on an interval until the context is cancelled.
func (p *Presence) Run(ctx context.Context, registry Registry, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Sweep(ctx, registry); err != nil {
				p.logger.Error("presence: sweep failed", "error", err)
			}
		}
	}
}

func presenceKey(doctorID string) string {
	return fmt.Sprintf("presence:doctor:%s", doctorID)
}
