package domain

import "strings"

// AlertCategory is a configured keyword alert
type AlertCategory struct {
	Name     string
	Emoji    string
	Priority bool
	Keywords []string
}

// AlertMatch is the alert attached to a post (value object)
type AlertMatch struct {
	Category string
	Keywords []string
	Priority bool
	Emoji    string
}

// UrgencyLevel is the tiered importance of a post
type UrgencyLevel string

const (
	UrgencyIgnore    UrgencyLevel = "ignore"
	UrgencyNormal    UrgencyLevel = "normal"
	UrgencyImportant UrgencyLevel = "important"
	UrgencyUrgent    UrgencyLevel = "urgent"
)

// Provenance tells which classifier produced an urgency
type Provenance string

const (
	ProvenanceAI        Provenance = "ai"
	ProvenanceHeuristic Provenance = "heuristic"
)

// Urgency is the classification of a post
type Urgency struct {
	Level  UrgencyLevel
	Score  float64
	Source Provenance
}

// ParseUrgencyLevel parses a level name, accepting any case
func ParseUrgencyLevel(s string) (UrgencyLevel, bool) {
	switch UrgencyLevel(strings.ToLower(strings.TrimSpace(s))) {
	case UrgencyIgnore:
		return UrgencyIgnore, true
	case UrgencyNormal:
		return UrgencyNormal, true
	case UrgencyImportant:
		return UrgencyImportant, true
	case UrgencyUrgent:
		return UrgencyUrgent, true
	}
	return "", false
}

// IsDegraded checks if the urgency came from the local fallback
func (u Urgency) IsDegraded() bool {
	return u.Source == ProvenanceHeuristic
}
