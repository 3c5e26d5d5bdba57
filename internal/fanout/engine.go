package fanout

import (
	"context"
	"fmt"
	"log"
	"time"

	alertdomain "buddyalert-backend/internal/alert/domain"
	userdomain "buddyalert-backend/internal/user/domain"
	"buddyalert-backend/pkg/geo"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrCandidateQuery wraps a failed candidate query. The run aborts and the
// caller owns retry with backoff.
var ErrCandidateQuery = fmt.Errorf("fanout: candidate query failed")

// ErrDeliveryLog wraps a failed delivery-record persist. The pushes already
// went out; the caller must treat the idempotency log as incomplete and
// must not blindly re-trigger the run.
var ErrDeliveryLog = fmt.Errorf("fanout: persisting delivery records failed")

// AlertStore is the alert-side store surface the engine needs.
type AlertStore interface {
	FindByID(id string) (*alertdomain.Alert, error)
	UpdateStatusIf(id string, from, to alertdomain.AlertStatus) (bool, error)
	ClaimFanout(id string, nowMs int64) (bool, error)
	ReleaseFanout(id string) error
}

// CandidateSource is the read-only user store surface the engine queries
// with coarse key ranges.
type CandidateSource interface {
	FindByKeyRanges(ctx context.Context, ranges []geo.KeyRange) ([]*userdomain.UserProfile, error)
}

// DeliveryLog persists delivery records and answers which recipients were
// already notified.
type DeliveryLog interface {
	RecordAll(records []alertdomain.DeliveryRecord) error
	SentRecipients(alertID string) (map[string]struct{}, error)
}

// RunOutcome summarizes one fan-out run.
type RunOutcome string

const (
	// OutcomeCompleted means recipients were resolved and dispatched.
	OutcomeCompleted RunOutcome = "completed"
	// OutcomeNoOp means the alert was not fanned out: not open, already
	// claimed by an overlapping run, or recently processed.
	OutcomeNoOp RunOutcome = "noop"
)

// Result is what a fan-out run produced.
type Result struct {
	Outcome    RunOutcome                   `json:"outcome"`
	Recipients int                          `json:"recipients"`
	Records    []alertdomain.DeliveryRecord `json:"records,omitempty"`
}

// Engine orchestrates one fan-out run per alert-creation event. Runs are
// idempotent per alert: delivery attempts are keyed by (alert, recipient)
// and an already-notified recipient is a no-op on a repeat run.
type Engine struct {
	alerts     AlertStore
	users      CandidateSource
	deliveries DeliveryLog
	dispatcher *Dispatcher
	filter     EligibilityFilter

	queryTimeout time.Duration

	// recentRuns short-circuits duplicate triggers for an alert this
	// process already fanned out moments ago, before touching the store.
	recentRuns   *lru.Cache[string, int64]
	RecentWindow time.Duration

	now func() time.Time
}

// NewEngine creates a fan-out engine.
func NewEngine(alerts AlertStore, users CandidateSource, deliveries DeliveryLog, dispatcher *Dispatcher, filter EligibilityFilter, queryTimeout time.Duration) *Engine {
	recent, _ := lru.New[string, int64](256)
	return &Engine{
		alerts:       alerts,
		users:        users,
		deliveries:   deliveries,
		dispatcher:   dispatcher,
		filter:       filter,
		queryTimeout: queryTimeout,
		recentRuns:   recent,
		RecentWindow: 30 * time.Second,
		now:          time.Now,
	}
}

// Run executes one fan-out for the alert. NoOp outcomes return a nil
// error; only invalid input and candidate-query failures surface.
func (e *Engine) Run(ctx context.Context, alertID string, payload Payload) (Result, error) {
	nowMs := e.now().UnixMilli()

	if e.RecentWindow > 0 {
		if doneMs, ok := e.recentRuns.Get(alertID); ok && nowMs-doneMs < e.RecentWindow.Milliseconds() {
			log.Printf("[Fanout] alert %s fanned out %dms ago, skipping", alertID, nowMs-doneMs)
			return Result{Outcome: OutcomeNoOp}, nil
		}
	}

	alert, err := e.alerts.FindByID(alertID)
	if err != nil {
		return Result{}, err
	}
	if alert == nil {
		return Result{}, alertdomain.ErrAlertNotFound
	}

	// Lazy expiry: an open alert past its TTL is expired for every
	// reader, even before the write lands.
	if alert.EffectiveStatus(nowMs) != alertdomain.StatusOpen {
		if alert.Status == alertdomain.StatusOpen {
			if _, err := e.alerts.UpdateStatusIf(alert.ID, alertdomain.StatusOpen, alertdomain.StatusExpired); err != nil {
				log.Printf("[Fanout] alert %s: expiry write failed: %v", alert.ID, err)
			}
		}
		log.Printf("[Fanout] alert %s is %s, nothing to do", alert.ID, alert.EffectiveStatus(nowMs))
		return Result{Outcome: OutcomeNoOp}, nil
	}

	claimed, err := e.alerts.ClaimFanout(alert.ID, nowMs)
	if err != nil {
		return Result{}, err
	}
	if !claimed {
		log.Printf("[Fanout] alert %s claimed by another run, skipping", alert.ID)
		return Result{Outcome: OutcomeNoOp}, nil
	}
	defer func() {
		if err := e.alerts.ReleaseFanout(alert.ID); err != nil {
			log.Printf("[Fanout] alert %s: claim release failed: %v", alert.ID, err)
		}
	}()

	ranges, err := geo.BoundsForRadius(alert.Lat, alert.Lng, alert.RadiusMeters)
	if err != nil {
		return Result{}, err
	}

	candidates, err := e.queryCandidates(ctx, ranges)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCandidateQuery, err)
	}

	// A candidate matching multiple key ranges must not be counted twice.
	candidates = dedupeByUID(candidates)

	decisions := e.filter.Apply(alert, candidates, nowMs)

	sent, err := e.deliveries.SentRecipients(alert.ID)
	if err != nil {
		return Result{}, err
	}

	var records []alertdomain.DeliveryRecord
	var recipients []*userdomain.UserProfile
	for _, decision := range decisions {
		if decision.Eligible {
			if _, already := sent[decision.Candidate.UID]; already {
				continue
			}
			recipients = append(recipients, decision.Candidate)
			continue
		}
		records = append(records, alertdomain.DeliveryRecord{
			ID:            uuid.New().String(),
			AlertID:       alert.ID,
			RecipientUID:  decision.Candidate.UID,
			Outcome:       alertdomain.OutcomeSkipped,
			Reason:        decision.Reason,
			AttemptedAtMs: nowMs,
		})
	}

	attempted := e.dispatcher.Dispatch(ctx, alert, recipients, payload)
	records = append(records, attempted...)

	if e.RecentWindow > 0 {
		e.recentRuns.Add(alert.ID, e.now().UnixMilli())
	}

	result := Result{Outcome: OutcomeCompleted, Recipients: len(recipients), Records: records}

	// The delivery log carries the SENT idempotency keys; losing it means
	// a later run could re-notify. One retry, then surface the failure.
	if err := e.deliveries.RecordAll(records); err != nil {
		log.Printf("[Fanout] alert %s: recording %d delivery records failed, retrying: %v", alert.ID, len(records), err)
		if err := e.deliveries.RecordAll(records); err != nil {
			return result, fmt.Errorf("%w: %v", ErrDeliveryLog, err)
		}
	}

	log.Printf("[Fanout] alert %s: %d candidates, %d recipients, %d records", alert.ID, len(candidates), len(recipients), len(records))
	return result, nil
}

func (e *Engine) queryCandidates(ctx context.Context, ranges []geo.KeyRange) ([]*userdomain.UserProfile, error) {
	queryCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()
	return e.users.FindByKeyRanges(queryCtx, ranges)
}

func dedupeByUID(candidates []*userdomain.UserProfile) []*userdomain.UserProfile {
	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if seen[c.UID] {
			continue
		}
		seen[c.UID] = true
		out = append(out, c)
	}
	return out
}
