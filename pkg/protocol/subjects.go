package protocol

import "fmt"

// NATS subject constants and helpers.
const (
	SubjectAlertsAll = "icwatch.alerts.>"
)

// SubjectAlerts is the subject alerts of the given code are published on.
func SubjectAlerts(code string) string {
	return fmt.Sprintf("icwatch.alerts.%s", code)
}
