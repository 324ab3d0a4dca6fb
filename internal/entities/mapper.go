package entities

import (
	"fmt"
	"strings"
	"time"
)

// Record is one raw item as decoded from a backend list response. Shapes vary
// per entity type, so extraction goes through the per-type MapFunc instead of
// ad hoc field access at call sites.
type Record map[string]any

// MapFunc converts a raw backend record into the common NotificationItem shape.
type MapFunc func(rec Record) (NotificationItem, error)

func mapContact(rec Record) (NotificationItem, error) {
	return buildItem(TypeContact, rec, field(rec, "name"), field(rec, "subject"))
}

func mapPropertyInquiry(rec Record) (NotificationItem, error) {
	return buildItem(TypePropertyInquiry, rec, field(rec, "name"), field(rec, "propertyAddress", "property_address"))
}

func mapInsuranceQuote(rec Record) (NotificationItem, error) {
	return buildItem(TypeInsuranceQuote, rec, field(rec, "name"), field(rec, "insuranceType", "insurance_type"))
}

func mapHomeImprovementQuote(rec Record) (NotificationItem, error) {
	return buildItem(TypeHomeImprovementQuote, rec, field(rec, "name"), field(rec, "projectType", "project_type"))
}

func mapAppointment(rec Record) (NotificationItem, error) {
	message := field(rec, "category")
	if date := field(rec, "preferredDate", "preferred_date"); date != "" {
		message = message + " - " + date
	}
	return buildItem(TypeAppointment, rec, field(rec, "name"), message)
}

func mapJobApplication(rec Record) (NotificationItem, error) {
	return buildItem(TypeJobApplication, rec, field(rec, "name"), field(rec, "position"))
}

func mapAgentApplication(rec Record) (NotificationItem, error) {
	return buildItem(TypeAgentApplication, rec, field(rec, "name"), field(rec, "licenseNumber", "license_number"))
}

func buildItem(t Type, rec Record, title, message string) (NotificationItem, error) {
	id := field(rec, "id", "_id")
	if id == "" {
		return NotificationItem{}, fmt.Errorf("entities: %s record has no id", t)
	}

	ts, err := recordTimestamp(rec)
	if err != nil {
		return NotificationItem{}, fmt.Errorf("entities: %s record %s: %w", t, id, err)
	}

	if title == "" {
		title = string(t)
	}

	return NotificationItem{
		Type:      t,
		ID:        id,
		Title:     title,
		Message:   message,
		Timestamp: ts,
	}, nil
}

// field returns the first non-empty string value among the supplied keys.
func field(rec Record, keys ...string) string {
	for _, key := range keys {
		if v, ok := rec[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func recordTimestamp(rec Record) (time.Time, error) {
	raw := field(rec, "createdAt", "created_at")
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing createdAt")
	}

	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse createdAt %q: %w", raw, err)
	}
	return ts, nil
}
