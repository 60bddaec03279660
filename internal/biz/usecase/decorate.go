package usecase

import (
	"fmt"
	"strings"

	"github.com/channelrelay/relay/internal/biz/domain"
)

var urgencyMarkers = map[domain.UrgencyLevel]string{
	domain.UrgencyUrgent:    "🔴 URGENT",
	domain.UrgencyImportant: "🟠 IMPORTANT",
	domain.UrgencyNormal:    "⚪ NORMAL",
}

// UrgencyTag returns the marker line for a classification.
// Normal posts are only tagged when the heuristic produced the level.
func UrgencyTag(u domain.Urgency) string {
	marker, ok := urgencyMarkers[u.Level]
	if !ok {
		return ""
	}
	if u.Level == domain.UrgencyNormal && !u.IsDegraded() {
		return ""
	}
	if u.IsDegraded() {
		marker += " (heuristic)"
	}
	return marker
}

// AlertBanner returns the banner line for an alert match
func AlertBanner(alert *domain.AlertMatch) string {
	if alert == nil {
		return ""
	}
	emoji := alert.Emoji
	if emoji == "" {
		emoji = "🚨"
	}
	return fmt.Sprintf("%s ALERT: %s (%s)", emoji, strings.ToUpper(alert.Category), strings.Join(alert.Keywords, ", "))
}

// ComposeDisplayText prefixes the post text with the urgency tag and alert banner
func ComposeDisplayText(text string, urgency domain.Urgency, alert *domain.AlertMatch) string {
	var header []string
	if banner := AlertBanner(alert); banner != "" {
		header = append(header, banner)
	}
	if tag := UrgencyTag(urgency); tag != "" {
		header = append(header, tag)
	}
	if len(header) == 0 {
		return text
	}
	if strings.TrimSpace(text) == "" {
		return strings.Join(header, "\n")
	}
	return strings.Join(header, "\n") + "\n\n" + text
}
