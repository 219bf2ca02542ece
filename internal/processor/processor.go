package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/soulscore/internal/hermes"
	"github.com/MikeSquared-Agency/soulscore/internal/ledger"
	"github.com/MikeSquared-Agency/soulscore/internal/reputation"
)

// Publisher emits follow-up events.
type Publisher interface {
	Publish(subject string, data any) error
}

// Processor turns activity and emotion events into reputation updates.
type Processor struct {
	ledger *ledger.Ledger
	hermes Publisher
	logger *slog.Logger
	now    func() time.Time
}

func New(l *ledger.Ledger, h Publisher, logger *slog.Logger) *Processor {
	return &Processor{
		ledger: l,
		hermes: h,
		logger: logger,
		now:    time.Now,
	}
}

// HandleActivity is the NATS handler for soulscore.activity.recorded.
func (p *Processor) HandleActivity(subject string, data []byte) {
	ctx := context.Background()

	var evt hermes.ActivityEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse activity event", "error", err)
		return
	}

	identityID, err := uuid.Parse(evt.IdentityID)
	if err != nil {
		p.logger.Error("invalid identity id", "identity_id", evt.IdentityID, "error", err)
		return
	}

	state, err := p.ledger.Apply(ctx, identityID, evt.Activity(), p.effectiveTime(evt.OccurredAt))
	if err != nil {
		p.logRejected("activity rejected", identityID, err)
		return
	}

	p.publishReputation(identityID, state)
	p.logger.Info("activity applied",
		"identity", identityID,
		"overall", state.OverallScore,
		"categories", len(evt.CategoryScores),
	)
}

// HandleObservation is the NATS handler for soulscore.emotion.observed.
func (p *Processor) HandleObservation(subject string, data []byte) {
	ctx := context.Background()

	var evt hermes.ObservationEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse observation event", "error", err)
		return
	}

	identityID, err := uuid.Parse(evt.IdentityID)
	if err != nil {
		p.logger.Error("invalid identity id", "identity_id", evt.IdentityID, "error", err)
		return
	}

	obs := evt.Observation()
	obs.Timestamp = p.effectiveTime(obs.Timestamp)

	update, err := p.ledger.RecordObservation(ctx, identityID, obs)
	if err != nil {
		p.logRejected("observation rejected", identityID, err)
		return
	}

	p.publishReputation(identityID, update.State)
	if err := p.hermes.Publish(hermes.SubjectEmotionTrend, hermes.TrendUpdated{
		IdentityID:         identityID.String(),
		Trend:              update.Summary.Trend,
		Complexity:         update.Summary.Complexity,
		VarianceComplexity: update.Summary.VarianceComplexity,
		Label:              update.Summary.Label,
	}); err != nil {
		p.logger.Error("failed to publish trend", "identity", identityID, "error", err)
	}

	p.logger.Info("observation recorded",
		"identity", identityID,
		"trend", update.Summary.Trend.String(),
		"overall", update.State.OverallScore,
	)
}

func (p *Processor) publishReputation(identityID uuid.UUID, state reputation.State) {
	if err := p.hermes.Publish(hermes.SubjectReputationUpdated, hermes.ReputationUpdated{
		IdentityID: identityID.String(),
		State:      state,
	}); err != nil {
		p.logger.Error("failed to publish reputation update", "identity", identityID, "error", err)
	}
}

// effectiveTime uses the event's own timestamp, falling back to the wall
// clock when the producer left it unset.
func (p *Processor) effectiveTime(ts int64) int64 {
	if ts > 0 {
		return ts
	}
	return p.now().Unix()
}

// logRejected logs caller mistakes as warnings and everything else as errors.
func (p *Processor) logRejected(msg string, identityID uuid.UUID, err error) {
	if ledger.IsValidation(err) {
		p.logger.Warn(msg, "identity", identityID, "error", err)
		return
	}
	p.logger.Error(msg, "identity", identityID, "error", err)
}
