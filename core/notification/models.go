package notification

import (
	"context"
	"time"
)

// Templates of the messaging provider.
const (
	DutiesTemplate     = "trafikkvakt_dagens_vakter"
	DutiesLanguage     = "nb"
	HelloWorldTemplate = "hello_world"
	HelloWorldLanguage = "en_US"
)

type (
	// SendResult is what the messaging provider reports for a sent message.
	SendResult struct {
		Success   bool      `json:"success"`
		MessageID string    `json:"messageId"`
		Recipient string    `json:"recipient"`
		Timestamp time.Time `json:"timestamp"`
		Template  string    `json:"template,omitempty"`
	}

	// Messenger delivers the daily notification. recipient "" means the configured default.
	Messenger interface {
		SendDutiesTemplate(ctx context.Context, dateText, dutiesText, recipient string) (SendResult, error)
		SendHelloWorld(ctx context.Context, recipient string) (SendResult, error)
	}

	// FallbackError is returned by a Messenger whose own hello_world fallback failed too.
	FallbackError struct {
		Err error
	}

	Status struct {
		Enabled          bool       `json:"enabled"`
		Running          bool       `json:"running"`
		NotificationTime string     `json:"notificationTime"`
		Timezone         string     `json:"timezone"`
		NextScheduled    *time.Time `json:"nextScheduled"`
	}

	// Report describes one run of the daily notification.
	Report struct {
		Skipped     bool        `json:"skipped"`
		Reason      string      `json:"reason,omitempty"`
		Day         string      `json:"day"`
		DateText    string      `json:"dateText"`
		DutiesText  string      `json:"dutiesText"`
		DutiesCount int         `json:"dutiesCount"`
		Result      *SendResult `json:"result,omitempty"`
		FellBack    bool        `json:"fellBack"`
		Emailed     int         `json:"emailed"`
	}
)

func (e *FallbackError) Error() string { return e.Err.Error() }
func (e *FallbackError) Cause() error  { return e.Err }
func (e *FallbackError) Unwrap() error { return e.Err }
