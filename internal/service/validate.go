package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/store"
)

// validateDates checks pairwise consistency of whichever dates are set.
// Publish additionally requires all three to be present.
func validateDates(start, end, deadline time.Time) error {
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return store.Validation("start_at", "must be before end_at")
	}
	if !deadline.IsZero() && !end.IsZero() && deadline.After(end) {
		return store.Validation("registration_deadline", "must not be after end_at")
	}
	return nil
}

// validateItems checks a draft inventory list. Publish-time requirements
// (positive price, at least one item) are stricter and checked separately.
func validateItems(items []model.Item) error {
	for i := range items {
		it := &items[i]
		if strings.TrimSpace(it.Name) == "" {
			return store.Validation("items", "item name is required")
		}
		if it.PriceCents < 0 {
			return store.Validation("items", "item price must not be negative")
		}
		if it.Stock < 0 {
			return store.Validation("items", "item stock must not be negative")
		}
		if it.PurchaseLimit < 0 {
			return store.Validation("items", "purchase limit must not be negative")
		}
	}
	return nil
}

// validateForm checks a custom-form definition.
func validateForm(fields []model.FormField) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		label := strings.TrimSpace(f.Label)
		if label == "" {
			return store.Validation("form", "field label is required")
		}
		if seen[label] {
			return store.Validation("form", "duplicate field label: "+label)
		}
		seen[label] = true
		switch f.Type {
		case model.FieldText, model.FieldEmail, model.FieldPhone, model.FieldNumber:
		default:
			return store.Validation("form", "unknown field type: "+string(f.Type))
		}
	}
	return nil
}

// validateAnswers checks submitted answers against the event's form
// definition. Required fields must be non-empty; typed fields are validated
// by format whenever an answer is given, required or not.
func validateAnswers(form []model.FormField, answers map[string]string) error {
	for _, f := range form {
		answer := strings.TrimSpace(answers[f.Label])
		if answer == "" {
			if f.Required {
				return store.Validation(f.Label, "answer is required")
			}
			continue
		}
		switch f.Type {
		case model.FieldEmail:
			if !isValidEmail(answer) {
				return store.Validation(f.Label, "not a valid email address")
			}
		case model.FieldPhone:
			if !isValidPhone(answer) {
				return store.Validation(f.Label, "not a valid phone number")
			}
		case model.FieldNumber:
			n, err := strconv.ParseFloat(answer, 64)
			if err != nil {
				return store.Validation(f.Label, "not a number")
			}
			if f.Min != nil && n < *f.Min {
				return store.Validation(f.Label, "below minimum")
			}
			if f.Max != nil && n > *f.Max {
				return store.Validation(f.Label, "above maximum")
			}
		}
	}
	return nil
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}

// isValidPhone accepts digits with optional leading + and common separators,
// requiring at least seven digits.
func isValidPhone(phone string) bool {
	digits := 0
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7
}
