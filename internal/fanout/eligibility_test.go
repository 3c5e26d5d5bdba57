package fanout

import (
	"math"
	"testing"
	"time"

	alertdomain "buddyalert-backend/internal/alert/domain"
	userdomain "buddyalert-backend/internal/user/domain"

	"github.com/stretchr/testify/assert"
)

const (
	alertLat = 50.1778
	alertLng = 9.0378

	testNowMs = int64(1_700_000_000_000)
)

// latAtDistance returns a latitude the given great-circle distance north
// of the alert, so the exact haversine distance matches the offset.
func latAtDistance(meters float64) float64 {
	return alertLat + (meters/6371000)*180/math.Pi
}

func openAlert() *alertdomain.Alert {
	return &alertdomain.Alert{
		ID:           "alert-1",
		Lat:          alertLat,
		Lng:          alertLng,
		Visibility:   alertdomain.VisibilityPublic,
		Status:       alertdomain.StatusOpen,
		RadiusMeters: 500,
		CreatedAtMs:  testNowMs,
		ExpiresAtMs:  testNowMs + alertdomain.AlertTTL.Milliseconds(),
		RequesterID:  "requester-1",
	}
}

func candidateAt(uid string, distanceMeters float64, verified bool, token string) *userdomain.UserProfile {
	lat := latAtDistance(distanceMeters)
	lng := alertLng
	return &userdomain.UserProfile{
		UID:              uid,
		Verified:         verified,
		PushToken:        token,
		LastLat:          &lat,
		LastLng:          &lng,
		LastLocationAtMs: testNowMs,
	}
}

func TestEligibilityScenario(t *testing.T) {
	// A at 300m, unverified, has token -> eligible.
	// B at 600m, verified, has token   -> out of range.
	// C at 100m, no token              -> no channel.
	alert := openAlert()
	filter := EligibilityFilter{}

	candidates := []*userdomain.UserProfile{
		candidateAt("user-a", 300, false, "token-a"),
		candidateAt("user-b", 600, true, "token-b"),
		candidateAt("user-c", 100, false, ""),
	}

	decisions := filter.Apply(alert, candidates, testNowMs)
	assert.Len(t, decisions, 3)

	assert.True(t, decisions[0].Eligible)
	assert.Empty(t, decisions[0].Reason)

	assert.False(t, decisions[1].Eligible)
	assert.Equal(t, ReasonOutOfRange, decisions[1].Reason)

	assert.False(t, decisions[2].Eligible)
	assert.Equal(t, ReasonNoChannel, decisions[2].Reason)
}

func TestEligibilityRuleOrder(t *testing.T) {
	alert := openAlert()
	alert.Visibility = alertdomain.VisibilityVerifiedOnly
	filter := EligibilityFilter{}

	tests := []struct {
		name      string
		candidate *userdomain.UserProfile
		reason    string
	}{
		{
			// No channel wins even when also unverified and far away.
			name:      "no channel checked first",
			candidate: candidateAt("u1", 900, false, ""),
			reason:    ReasonNoChannel,
		},
		{
			name:      "verification before location",
			candidate: &userdomain.UserProfile{UID: "u2", PushToken: "t", Verified: false},
			reason:    ReasonNotVerified,
		},
		{
			name:      "missing location",
			candidate: &userdomain.UserProfile{UID: "u3", PushToken: "t", Verified: true},
			reason:    ReasonNoLocation,
		},
		{
			name:      "requester never notified",
			candidate: candidateAt("requester-1", 100, true, "t"),
			reason:    ReasonRequester,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := filter.Evaluate(alert, tt.candidate, testNowMs)
			assert.False(t, decision.Eligible)
			assert.Equal(t, tt.reason, decision.Reason)
		})
	}
}

func TestEligibilityVerifiedOnlyNeverAdmitsUnverified(t *testing.T) {
	alert := openAlert()
	alert.Visibility = alertdomain.VisibilityVerifiedOnly
	filter := EligibilityFilter{}

	for _, distance := range []float64{0, 50, 250, 499} {
		c := candidateAt("unverified", distance, false, "token")
		decision := filter.Evaluate(alert, c, testNowMs)
		assert.False(t, decision.Eligible)
		assert.Equal(t, ReasonNotVerified, decision.Reason)
	}
}

func TestEligibilityStaleLocation(t *testing.T) {
	alert := openAlert()
	filter := EligibilityFilter{StalenessHorizon: 30 * time.Minute}

	fresh := candidateAt("fresh", 100, true, "token")
	stale := candidateAt("stale", 100, true, "token")
	stale.LastLocationAtMs = testNowMs - (31 * time.Minute).Milliseconds()

	assert.True(t, filter.Evaluate(alert, fresh, testNowMs).Eligible)

	decision := filter.Evaluate(alert, stale, testNowMs)
	assert.False(t, decision.Eligible)
	assert.Equal(t, ReasonStaleLocation, decision.Reason)

	// Horizon zero disables the check.
	assert.True(t, EligibilityFilter{}.Evaluate(alert, stale, testNowMs).Eligible)
}

func TestEligibilityIsPureAndTotal(t *testing.T) {
	alert := openAlert()
	filter := EligibilityFilter{StalenessHorizon: 30 * time.Minute}

	candidates := []*userdomain.UserProfile{
		candidateAt("a", 300, false, "token"),
		candidateAt("b", 600, true, "token"),
		candidateAt("c", 100, false, ""),
		{UID: "d", PushToken: "t"},
		candidateAt("requester-1", 10, true, "t"),
	}

	first := filter.Apply(alert, candidates, testNowMs)
	second := filter.Apply(alert, candidates, testNowMs)

	assert.Equal(t, first, second)
	assert.Len(t, first, len(candidates), "every candidate gets exactly one verdict")
	for _, d := range first {
		if !d.Eligible {
			assert.NotEmpty(t, d.Reason, "ineligible candidates carry a named reason")
		}
	}
}
