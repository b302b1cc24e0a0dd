package inspect

import "encoding/json"

// Severity represents how risky a statement is.
type Severity int

const (
	// Low indicates a minor concern.
	Low Severity = iota + 1
	// Medium indicates moderate risk with workarounds available.
	Medium
	// High indicates a table lock, rewrite, or likely failure on populated tables.
	High
	// Critical indicates irreversible data loss.
	Critical
)

// String returns the uppercase label for the severity level.
func (s Severity) String() string {
	switch s {
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON encodes the severity as its label.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
