package domain

import "time"

// DenialReason explains why an access check failed.
type DenialReason string

const (
	ReasonUnauthenticated DenialReason = "unauthenticated"
	ReasonKindNotAllowed  DenialReason = "kind_not_allowed"
	ReasonNoPolicy        DenialReason = "no_policy"
	ReasonResourceDenied  DenialReason = "resource_denied"
)

// AccessEvent records one denied access attempt.
type AccessEvent struct {
	ID            string        `json:"id"`
	PrincipalKind PrincipalKind `json:"principal_kind,omitempty"`
	Path          string        `json:"path"`
	Reason        DenialReason  `json:"reason"`
	// Timestamp is Unix milliseconds.
	Timestamp int64  `json:"timestamp"`
	SessionID string `json:"session_id,omitempty"`
	// Burst marks events that pushed their kind over the burst threshold.
	Burst bool `json:"burst,omitempty"`
}

// Time returns Timestamp as a time.Time.
func (e *AccessEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}
