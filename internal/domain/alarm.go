package domain

import "strings"

// Severity is ordered: NONE < MINOR < MAJOR < INVALID < UNDEFINED.
// UNDEFINED also marks samples that carry no value (disconnected, archive off).
type Severity uint8

const (
	SeverityNone Severity = iota
	SeverityMinor
	SeverityMajor
	SeverityInvalid
	SeverityUndefined
)

// Severities lists all severities in ascending order.
var Severities = []Severity{SeverityNone, SeverityMinor, SeverityMajor, SeverityInvalid, SeverityUndefined}

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "NONE"
	case SeverityMinor:
		return "MINOR"
	case SeverityMajor:
		return "MAJOR"
	case SeverityInvalid:
		return "INVALID"
	default:
		return "UNDEFINED"
	}
}

// Alarm is the decoded severity/status pair of a sample.
type Alarm struct {
	Severity Severity `json:"severity"`
	Status   string   `json:"status"`
}

// NoAlarm is attached to synthesized samples (bins, averages).
func NoAlarm() Alarm {
	return Alarm{Severity: SeverityNone, Status: "NONE"}
}

// Status texts that mean the archived row holds no actual value.
const (
	StatusArchiveOff   = "Archive_Off"
	StatusDisconnected = "Disconnected"
	StatusWriteError   = "Write_Error"
)

// IsNoValueStatus reports whether status marks a row without a value.
func IsNoValueStatus(status string) bool {
	return strings.EqualFold(status, StatusArchiveOff) ||
		strings.EqualFold(status, StatusDisconnected) ||
		strings.EqualFold(status, StatusWriteError)
}

// NewAlarm applies the no-value override: such statuses always decode to
// SeverityUndefined whatever the stored severity was.
func NewAlarm(severity Severity, status string) Alarm {
	if IsNoValueStatus(status) {
		severity = SeverityUndefined
	}
	return Alarm{Severity: severity, Status: status}
}
