package ingress

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/telemetry"
)

// Config tunes Stage-1 thresholds.
type Config struct {
	RateLimitPerMin            int
	DedupTTL                   time.Duration
	RateLimitEventsToBlocklist int
}

func (c Config) withDefaults() Config {
	if c.RateLimitPerMin <= 0 {
		c.RateLimitPerMin = 100
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 5 * time.Minute
	}
	if c.RateLimitEventsToBlocklist <= 0 {
		c.RateLimitEventsToBlocklist = 5
	}
	return c
}

// Result is what the pipeline hands back to an adapter's own HTTP handler
// once Stage 1 and (if applicable) Stage 2 have run.
type Result struct {
	Outcome        Outcome
	Message        InboundMessage
	Classification Classification
	Err            error
}

// Pipeline runs both Ingress Pipeline stages over every inbound request.
type Pipeline struct {
	cfg         Config
	blocklist   *Blocklist
	rateLimiter RateLimiter
	dedup       *Deduplicator
	logger      *slog.Logger
	tracer      *pipelineTracer
}

func NewPipeline(cfg Config, blocklist *Blocklist, rateLimiter RateLimiter, dedup *Deduplicator, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:         cfg.withDefaults(),
		blocklist:   blocklist,
		rateLimiter: rateLimiter,
		dedup:       dedup,
		logger:      logger,
		tracer:      newPipelineTracer(),
	}
}

// Ingest runs Stage 1 over a raw request for the given adapter, then (on
// acceptance) Stage 2 classification. sourceKey is the rate-limit/blocklist
// key, typically "source_ip:user_id".
func (p *Pipeline) Ingest(ctx context.Context, adapter Adapter, sourceKey string, rawRequest []byte, headers map[string]string) Result {
	ctx, span := p.tracer.start(ctx, "ingress.pipeline.ingest")
	defer span.end()

	if outcome, err := p.stage1(ctx, adapter, sourceKey, rawRequest, headers); outcome != OutcomeAccepted {
		return Result{Outcome: outcome, Err: err}
	}

	msg, err := adapter.Parse(rawRequest, headers)
	if err != nil {
		p.recordStage(ctx, "normalize", OutcomeSchemaInvalid)
		return Result{Outcome: OutcomeSchemaInvalid, Err: apierr.ErrInvalidRequest.Wrap(err)}
	}
	p.recordStage(ctx, "normalize", OutcomeAccepted)

	if MatchesSpamHeuristic(msg.Text) {
		p.recordStage(ctx, "heuristics", OutcomeSpamDetected)
		return Result{Outcome: OutcomeSpamDetected, Message: msg, Err: apierr.ErrSpamDetected}
	}
	p.recordStage(ctx, "heuristics", OutcomeAccepted)

	classification := p.classifySafely(msg.Text)
	return Result{Outcome: OutcomeAccepted, Message: msg, Classification: classification}
}

func (p *Pipeline) stage1(ctx context.Context, adapter Adapter, sourceKey string, rawRequest []byte, headers map[string]string) (Outcome, error) {
	if p.blocklist.Contains(sourceKey) {
		p.recordStage(ctx, "blocklist", OutcomeBlocked)
		return OutcomeBlocked, apierr.ErrBlockedSource
	}
	p.recordStage(ctx, "blocklist", OutcomeAccepted)

	if err := adapter.Verify(rawRequest, headers); err != nil {
		p.recordStage(ctx, "signature", OutcomeInvalidSignature)
		return OutcomeInvalidSignature, apierr.ErrInvalidSignature.Wrap(err)
	}
	p.recordStage(ctx, "signature", OutcomeAccepted)

	allowed, violations, err := p.rateLimiter.Allow(ctx, sourceKey)
	if err != nil {
		p.logger.Warn("ingress.rate_limit_check_failed", "source_key", sourceKey, "error", err)
	}
	if !allowed {
		if violations >= p.cfg.RateLimitEventsToBlocklist {
			p.blocklist.Add(sourceKey)
			p.logger.Warn("ingress.source_promoted_to_blocklist", "source_key", sourceKey, "violations", violations)
		}
		p.recordStage(ctx, "rate_limit", OutcomeRateLimited)
		return OutcomeRateLimited, apierr.RateLimited(60_000)
	}
	p.recordStage(ctx, "rate_limit", OutcomeAccepted)

	seen, err := p.dedup.SeenBefore(ctx, adapter.Platform(), sourceKey+":"+rawRefHint(headers))
	if err != nil {
		p.logger.Warn("ingress.dedup_check_failed", "error", err)
	}
	if seen {
		p.recordStage(ctx, "dedup", OutcomeDuplicate)
		return OutcomeDuplicate, apierr.ErrDuplicate
	}
	p.recordStage(ctx, "dedup", OutcomeAccepted)

	if verrs := adapter.ValidatePayload(rawRequest); len(verrs) > 0 {
		p.recordStage(ctx, "schema_validation", OutcomeSchemaInvalid)
		return OutcomeSchemaInvalid, apierr.ErrInvalidRequest
	}
	p.recordStage(ctx, "schema_validation", OutcomeAccepted)

	return OutcomeAccepted, nil
}

// rawRefHint extracts a stable per-message identifier from headers when the
// adapter supplies one (e.g. X-Request-Id), falling back to a constant so
// dedup degrades to "one in flight per source" rather than panicking.
func rawRefHint(headers map[string]string) string {
	for _, k := range []string{"X-Request-Id", "X-Message-Id", "x-request-id", "x-message-id"} {
		if v, ok := headers[k]; ok && v != "" {
			return v
		}
	}
	return "no-ref"
}

// classifySafely never lets a Stage-2 classification panic propagate:
// a Stage-2 failure logs and falls back to unknown rather than rejecting
// the message.
func (p *Pipeline) classifySafely(text string) (c Classification) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("ingress.classify_panicked", "recovered", r)
			c = Classification{Category: CategoryUnknown}
		}
	}()
	return Classify(text)
}

func (p *Pipeline) recordStage(ctx context.Context, stage string, outcome Outcome) {
	telemetry.IngressStageOutcomeTotal.With(prometheus.Labels{"stage": stage, "outcome": string(outcome)}).Inc()
	p.tracer.event(ctx, stage, string(outcome))
}
