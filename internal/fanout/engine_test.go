package fanout

import (
	"context"
	"errors"
	"testing"
	"time"

	alertdomain "buddyalert-backend/internal/alert/domain"
	userdomain "buddyalert-backend/internal/user/domain"
	"buddyalert-backend/pkg/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAlertStore struct {
	alerts map[string]*alertdomain.Alert
}

func (s *fakeAlertStore) FindByID(id string) (*alertdomain.Alert, error) {
	alert, ok := s.alerts[id]
	if !ok {
		return nil, nil
	}
	copied := *alert
	return &copied, nil
}

func (s *fakeAlertStore) UpdateStatusIf(id string, from, to alertdomain.AlertStatus) (bool, error) {
	alert, ok := s.alerts[id]
	if !ok || alert.Status != from {
		return false, nil
	}
	alert.Status = to
	return true, nil
}

func (s *fakeAlertStore) ClaimFanout(id string, nowMs int64) (bool, error) {
	alert, ok := s.alerts[id]
	if !ok || alert.Status != alertdomain.StatusOpen || alert.FanoutClaimedAtMs != 0 {
		return false, nil
	}
	alert.FanoutClaimedAtMs = nowMs
	return true, nil
}

func (s *fakeAlertStore) ReleaseFanout(id string) error {
	if alert, ok := s.alerts[id]; ok {
		alert.FanoutClaimedAtMs = 0
	}
	return nil
}

type fakeUserStore struct {
	users     []*userdomain.UserProfile
	err       error
	gotRanges [][]geo.KeyRange
}

func (s *fakeUserStore) FindByKeyRanges(_ context.Context, ranges []geo.KeyRange) ([]*userdomain.UserProfile, error) {
	s.gotRanges = append(s.gotRanges, ranges)
	if s.err != nil {
		return nil, s.err
	}
	var matched []*userdomain.UserProfile
	for _, u := range s.users {
		for _, r := range ranges {
			if r.Contains(u.Geohash) {
				matched = append(matched, u)
			}
		}
	}
	return matched, nil
}

type fakeDeliveryLog struct {
	records     []alertdomain.DeliveryRecord
	failRecords int
}

func (l *fakeDeliveryLog) RecordAll(records []alertdomain.DeliveryRecord) error {
	if l.failRecords > 0 {
		l.failRecords--
		return errors.New("insert failed")
	}
	for _, r := range records {
		if l.exists(r.AlertID, r.RecipientUID, r.Outcome) {
			continue
		}
		l.records = append(l.records, r)
	}
	return nil
}

func (l *fakeDeliveryLog) SentRecipients(alertID string) (map[string]struct{}, error) {
	sent := make(map[string]struct{})
	for _, r := range l.records {
		if r.AlertID == alertID && r.Outcome == alertdomain.OutcomeSent {
			sent[r.RecipientUID] = struct{}{}
		}
	}
	return sent, nil
}

func (l *fakeDeliveryLog) exists(alertID, uid string, outcome alertdomain.DeliveryOutcome) bool {
	for _, r := range l.records {
		if r.AlertID == alertID && r.RecipientUID == uid && r.Outcome == outcome {
			return true
		}
	}
	return false
}

func (l *fakeDeliveryLog) count(outcome alertdomain.DeliveryOutcome) int {
	n := 0
	for _, r := range l.records {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

func withKey(u *userdomain.UserProfile) *userdomain.UserProfile {
	key, err := geo.Encode(*u.LastLat, *u.LastLng)
	if err != nil {
		panic(err)
	}
	u.Geohash = key
	return u
}

func newTestEngine(alerts *fakeAlertStore, users *fakeUserStore, deliveries *fakeDeliveryLog, provider PushProvider) *Engine {
	dispatcher := NewDispatcher(provider, time.Second)
	engine := NewEngine(alerts, users, deliveries, dispatcher, EligibilityFilter{}, time.Second)
	engine.RecentWindow = 0 // exercise the store-backed idempotency path
	engine.now = func() time.Time { return time.UnixMilli(testNowMs) }
	return engine
}

func TestRunFanout(t *testing.T) {
	alert := openAlert()
	alerts := &fakeAlertStore{alerts: map[string]*alertdomain.Alert{alert.ID: alert}}
	users := &fakeUserStore{users: []*userdomain.UserProfile{
		withKey(candidateAt("user-a", 300, false, "token-a")),
		withKey(candidateAt("user-b", 600, true, "token-b")),
		withKey(candidateAt("user-c", 100, false, "")),
	}}
	deliveries := &fakeDeliveryLog{}
	provider := &fakeProvider{}

	engine := newTestEngine(alerts, users, deliveries, provider)
	result, err := engine.Run(context.Background(), alert.ID, Payload{Title: "sos"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, 1, result.Recipients)
	assert.Equal(t, []string{"token-a"}, provider.sent)

	assert.Equal(t, 1, deliveries.count(alertdomain.OutcomeSent))
	assert.Equal(t, 2, deliveries.count(alertdomain.OutcomeSkipped))
	assert.True(t, deliveries.exists(alert.ID, "user-a", alertdomain.OutcomeSent))

	// Claim is released once the run completes.
	assert.Zero(t, alerts.alerts[alert.ID].FanoutClaimedAtMs)
	require.Len(t, users.gotRanges, 1)
	assert.NotEmpty(t, users.gotRanges[0])
}

func TestRunFanoutIdempotent(t *testing.T) {
	alert := openAlert()
	alerts := &fakeAlertStore{alerts: map[string]*alertdomain.Alert{alert.ID: alert}}
	users := &fakeUserStore{users: []*userdomain.UserProfile{
		withKey(candidateAt("user-a", 300, false, "token-a")),
	}}
	deliveries := &fakeDeliveryLog{}
	provider := &fakeProvider{}

	engine := newTestEngine(alerts, users, deliveries, provider)

	first, err := engine.Run(context.Background(), alert.ID, Payload{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Recipients)

	second, err := engine.Run(context.Background(), alert.ID, Payload{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, second.Outcome)
	assert.Zero(t, second.Recipients, "already-notified recipient is a no-op")

	assert.Equal(t, 1, deliveries.count(alertdomain.OutcomeSent), "no duplicate SENT record")
	assert.Equal(t, []string{"token-a"}, provider.sent, "no duplicate push")
}

func TestRunFanoutRecentRunMemo(t *testing.T) {
	alert := openAlert()
	alerts := &fakeAlertStore{alerts: map[string]*alertdomain.Alert{alert.ID: alert}}
	users := &fakeUserStore{}
	deliveries := &fakeDeliveryLog{}

	engine := newTestEngine(alerts, users, deliveries, &fakeProvider{})
	engine.RecentWindow = 30 * time.Second

	_, err := engine.Run(context.Background(), alert.ID, Payload{})
	require.NoError(t, err)

	result, err := engine.Run(context.Background(), alert.ID, Payload{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, result.Outcome)
	assert.Len(t, users.gotRanges, 1, "duplicate trigger never reaches the store")
}

func TestRunFanoutNotOpen(t *testing.T) {
	for _, status := range []alertdomain.AlertStatus{
		alertdomain.StatusResolved,
		alertdomain.StatusCancelled,
		alertdomain.StatusExpired,
	} {
		alert := openAlert()
		alert.Status = status
		alerts := &fakeAlertStore{alerts: map[string]*alertdomain.Alert{alert.ID: alert}}
		users := &fakeUserStore{}
		deliveries := &fakeDeliveryLog{}

		engine := newTestEngine(alerts, users, deliveries, &fakeProvider{})
		result, err := engine.Run(context.Background(), alert.ID, Payload{})

		require.NoError(t, err)
		assert.Equal(t, OutcomeNoOp, result.Outcome)
		assert.Empty(t, result.Records)
		assert.Empty(t, users.gotRanges, "non-open alert never queries candidates")
	}
}

func TestRunFanoutExpiredByTTL(t *testing.T) {
	alert := openAlert()
	alert.ExpiresAtMs = testNowMs - 1 // TTL elapsed, write not yet confirmed
	alerts := &fakeAlertStore{alerts: map[string]*alertdomain.Alert{alert.ID: alert}}
	deliveries := &fakeDeliveryLog{}

	engine := newTestEngine(alerts, &fakeUserStore{}, deliveries, &fakeProvider{})
	result, err := engine.Run(context.Background(), alert.ID, Payload{})

	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, result.Outcome)
	assert.Empty(t, deliveries.records)
	assert.Equal(t, alertdomain.StatusExpired, alerts.alerts[alert.ID].Status, "lazy expiry persisted")
}

func TestRunFanoutUnknownAlert(t *testing.T) {
	engine := newTestEngine(&fakeAlertStore{alerts: map[string]*alertdomain.Alert{}}, &fakeUserStore{}, &fakeDeliveryLog{}, &fakeProvider{})
	_, err := engine.Run(context.Background(), "missing", Payload{})
	assert.ErrorIs(t, err, alertdomain.ErrAlertNotFound)
}

func TestRunFanoutCandidateQueryFailure(t *testing.T) {
	alert := openAlert()
	alerts := &fakeAlertStore{alerts: map[string]*alertdomain.Alert{alert.ID: alert}}
	users := &fakeUserStore{err: errors.New("store unreachable")}

	engine := newTestEngine(alerts, users, &fakeDeliveryLog{}, &fakeProvider{})
	_, err := engine.Run(context.Background(), alert.ID, Payload{})

	assert.ErrorIs(t, err, ErrCandidateQuery)
	assert.Zero(t, alerts.alerts[alert.ID].FanoutClaimedAtMs, "claim released so the caller's retry can proceed")
}

func TestRunFanoutConcurrentClaim(t *testing.T) {
	alert := openAlert()
	alert.FanoutClaimedAtMs = testNowMs - 100 // another run in flight
	alerts := &fakeAlertStore{alerts: map[string]*alertdomain.Alert{alert.ID: alert}}
	users := &fakeUserStore{}

	engine := newTestEngine(alerts, users, &fakeDeliveryLog{}, &fakeProvider{})
	result, err := engine.Run(context.Background(), alert.ID, Payload{})

	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, result.Outcome)
	assert.Empty(t, users.gotRanges)
}

func TestRunFanoutDedupesAcrossRanges(t *testing.T) {
	alert := openAlert()
	alerts := &fakeAlertStore{alerts: map[string]*alertdomain.Alert{alert.ID: alert}}

	// The fake store returns the user once per matching range; the
	// engine must still count them once.
	duplicated := withKey(candidateAt("user-a", 100, true, "token-a"))
	users := &fakeUserStore{users: []*userdomain.UserProfile{duplicated, duplicated}}
	deliveries := &fakeDeliveryLog{}
	provider := &fakeProvider{}

	engine := newTestEngine(alerts, users, deliveries, provider)
	result, err := engine.Run(context.Background(), alert.ID, Payload{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Recipients)
	assert.Equal(t, []string{"token-a"}, provider.sent)
}

func TestRunFanoutVerifiedOnly(t *testing.T) {
	alert := openAlert()
	alert.Visibility = alertdomain.VisibilityVerifiedOnly
	alerts := &fakeAlertStore{alerts: map[string]*alertdomain.Alert{alert.ID: alert}}
	users := &fakeUserStore{users: []*userdomain.UserProfile{
		withKey(candidateAt("verified", 200, true, "token-v")),
		withKey(candidateAt("unverified", 200, false, "token-u")),
	}}
	deliveries := &fakeDeliveryLog{}
	provider := &fakeProvider{}

	engine := newTestEngine(alerts, users, deliveries, provider)
	result, err := engine.Run(context.Background(), alert.ID, Payload{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Recipients)
	assert.Equal(t, []string{"token-v"}, provider.sent)
	assert.True(t, deliveries.exists(alert.ID, "unverified", alertdomain.OutcomeSkipped))
}

func TestRunFanoutRetriesRecordPersist(t *testing.T) {
	alert := openAlert()
	alerts := &fakeAlertStore{alerts: map[string]*alertdomain.Alert{alert.ID: alert}}
	users := &fakeUserStore{users: []*userdomain.UserProfile{
		withKey(candidateAt("user-a", 100, true, "token-a")),
	}}
	deliveries := &fakeDeliveryLog{failRecords: 1}

	engine := newTestEngine(alerts, users, deliveries, &fakeProvider{})
	result, err := engine.Run(context.Background(), alert.ID, Payload{})

	require.NoError(t, err, "a transient insert failure is absorbed by the retry")
	assert.Equal(t, 1, result.Recipients)
	assert.Equal(t, 1, deliveries.count(alertdomain.OutcomeSent))
}

func TestRunFanoutSurfacesLostDeliveryLog(t *testing.T) {
	alert := openAlert()
	alerts := &fakeAlertStore{alerts: map[string]*alertdomain.Alert{alert.ID: alert}}
	users := &fakeUserStore{users: []*userdomain.UserProfile{
		withKey(candidateAt("user-a", 100, true, "token-a")),
	}}
	deliveries := &fakeDeliveryLog{failRecords: 2}
	provider := &fakeProvider{}

	engine := newTestEngine(alerts, users, deliveries, provider)
	result, err := engine.Run(context.Background(), alert.ID, Payload{})

	assert.ErrorIs(t, err, ErrDeliveryLog)
	assert.Equal(t, []string{"token-a"}, provider.sent, "pushes were already delivered")
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	require.Len(t, result.Records, 1, "caller still sees what was attempted")
	assert.Empty(t, deliveries.records)
}

func TestRunFanoutRetriesFailedRecipients(t *testing.T) {
	alert := openAlert()
	alerts := &fakeAlertStore{alerts: map[string]*alertdomain.Alert{alert.ID: alert}}
	users := &fakeUserStore{users: []*userdomain.UserProfile{
		withKey(candidateAt("user-a", 100, true, "token-a")),
	}}
	deliveries := &fakeDeliveryLog{}
	provider := &fakeProvider{fail: map[string]error{"token-a": errors.New("unavailable")}}

	engine := newTestEngine(alerts, users, deliveries, provider)

	_, err := engine.Run(context.Background(), alert.ID, Payload{})
	require.NoError(t, err)
	assert.Equal(t, 1, deliveries.count(alertdomain.OutcomeFailed))

	// Provider recovers; a re-run reprocesses the failed recipient.
	provider.fail = nil
	result, err := engine.Run(context.Background(), alert.ID, Payload{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recipients)
	assert.Equal(t, 1, deliveries.count(alertdomain.OutcomeSent))
}
