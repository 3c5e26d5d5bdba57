package fanout

import (
	"time"

	alertdomain "buddyalert-backend/internal/alert/domain"
	userdomain "buddyalert-backend/internal/user/domain"
	"buddyalert-backend/pkg/geo"
)

// Skip reasons recorded on SKIPPED delivery records.
const (
	ReasonNoChannel     = "no channel"
	ReasonNotVerified   = "not verified"
	ReasonNoLocation    = "no location"
	ReasonStaleLocation = "stale location"
	ReasonOutOfRange    = "out of range"
	ReasonRequester     = "requester"
)

// Decision is the verdict for one candidate. Every candidate yields
// exactly one Decision; ineligibility is a named reason, never an error.
type Decision struct {
	Candidate *userdomain.UserProfile
	Eligible  bool
	Reason    string
}

// EligibilityFilter decides which coarse-filtered candidates qualify for
// notification. Pure: no I/O, identical input yields identical output.
type EligibilityFilter struct {
	// StalenessHorizon makes location fixes older than the horizon
	// unusable. Zero disables the check.
	StalenessHorizon time.Duration
}

// Evaluate applies the rules in order and short-circuits on the first
// failing rule.
func (f EligibilityFilter) Evaluate(alert *alertdomain.Alert, candidate *userdomain.UserProfile, nowMs int64) Decision {
	if candidate.PushToken == "" {
		return Decision{Candidate: candidate, Reason: ReasonNoChannel}
	}
	if alert.Visibility == alertdomain.VisibilityVerifiedOnly && !candidate.Verified {
		return Decision{Candidate: candidate, Reason: ReasonNotVerified}
	}
	if !candidate.HasLocation() {
		return Decision{Candidate: candidate, Reason: ReasonNoLocation}
	}
	if f.StalenessHorizon > 0 && candidate.LastLocationAtMs < nowMs-f.StalenessHorizon.Milliseconds() {
		return Decision{Candidate: candidate, Reason: ReasonStaleLocation}
	}
	origin := geo.Point{Lat: alert.Lat, Lng: alert.Lng}
	if geo.DistanceMeters(candidate.Location(), origin) > alert.RadiusMeters {
		return Decision{Candidate: candidate, Reason: ReasonOutOfRange}
	}
	if candidate.UID == alert.RequesterID {
		return Decision{Candidate: candidate, Reason: ReasonRequester}
	}
	return Decision{Candidate: candidate, Eligible: true}
}

// Apply evaluates every candidate. Output order follows input order; no
// ordering is guaranteed to callers.
func (f EligibilityFilter) Apply(alert *alertdomain.Alert, candidates []*userdomain.UserProfile, nowMs int64) []Decision {
	decisions := make([]Decision, 0, len(candidates))
	for _, candidate := range candidates {
		decisions = append(decisions, f.Evaluate(alert, candidate, nowMs))
	}
	return decisions
}
