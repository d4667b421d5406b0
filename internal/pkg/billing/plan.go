package billing

import (
	"strings"

	"github.com/courselyhq/coursely/app/models"
)

// normalizeStatus constrains provider status strings to the local enum.
// Anything unrecognized is treated as incomplete rather than stored verbatim.
func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubStatusActive:
		return models.SubStatusActive
	case models.SubStatusTrialing:
		return models.SubStatusTrialing
	case models.SubStatusPastDue:
		return models.SubStatusPastDue
	case models.SubStatusUnpaid:
		return models.SubStatusUnpaid
	case models.SubStatusCanceled:
		return models.SubStatusCanceled
	case models.SubStatusPaused:
		return models.SubStatusPaused
	case models.SubStatusIncompleteExpired:
		return models.SubStatusIncompleteExpired
	default:
		return models.SubStatusIncomplete
	}
}

func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubStatusActive, models.SubStatusTrialing, models.SubStatusPastDue:
		return true
	default:
		return false
	}
}
