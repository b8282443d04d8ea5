package providers

import "strings"

// ErrorType drives the failover decision in the deck workflow: quota errors
// cool a provider down for a long window, rate and transient errors earn a
// short sleep and another attempt, anything else disables the provider.
type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorContext   ErrorType = "context"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
)

// ClassifyError buckets a provider error by message. Providers do not agree
// on status codes or error shapes, so substring matching is the lowest common
// denominator that works across all of them.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"), strings.Contains(msg, "credit"), strings.Contains(msg, "billing"):
		return ErrorQuota
	case strings.Contains(msg, "rate"), strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"):
		return ErrorRate
	case strings.Contains(msg, "context"), strings.Contains(msg, "too long"), strings.Contains(msg, "maximum length"):
		return ErrorContext
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "temporarily"),
		strings.Contains(msg, "unavailable"), strings.Contains(msg, "overloaded"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}
