package domain

import (
	"encoding/json"
	"time"
)

type PassStatus string

const (
	PassActive  PassStatus = "active"
	PassUsed    PassStatus = "used"
	PassExpired PassStatus = "expired"
	PassRevoked PassStatus = "revoked"
)

// Validity window margins around the appointment slot.
const (
	PassEarlyEntry = 30 * time.Minute
	PassLateExit   = 60 * time.Minute
)

// Pass is the time-windowed access credential minted from one approved
// appointment. The token is the only thing the scanner needs; the embedded
// payload is for offline display and carries no authority.
type Pass struct {
	ID            int64      `json:"id"`
	Token         string     `json:"token"`
	AppointmentID int64      `json:"appointment_id"`
	VisitorID     int64      `json:"visitor_id"`
	HostID        int64      `json:"host_id"`
	IssuedBy      int64      `json:"issued_by"`
	Location      string     `json:"location"`
	ValidFrom     time.Time  `json:"valid_from"`
	ValidTo       time.Time  `json:"valid_to"`
	Status        PassStatus `json:"status"`
	ScanPayload   string     `json:"scan_payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidityWindow derives [validFrom, validTo] from the appointment slot:
// entry opens 30 minutes before the scheduled start and closes one hour
// after the scheduled end.
func ValidityWindow(scheduledAt time.Time, durationMin int) (time.Time, time.Time) {
	validFrom := scheduledAt.Add(-PassEarlyEntry)
	validTo := scheduledAt.Add(time.Duration(durationMin)*time.Minute + PassLateExit)
	return validFrom, validTo
}

// ScanPayload is what gets encoded into the scannable code. Consumers must
// treat everything except the token as advisory; authority is the server
// record looked up by token.
type ScanPayload struct {
	Token       string    `json:"token"`
	VisitorName string    `json:"visitor_name"`
	ValidFrom   time.Time `json:"valid_from"`
	ValidTo     time.Time `json:"valid_to"`
}

func EncodeScanPayload(token, visitorName string, validFrom, validTo time.Time) (string, error) {
	b, err := json.Marshal(ScanPayload{
		Token:       token,
		VisitorName: visitorName,
		ValidFrom:   validFrom,
		ValidTo:     validTo,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CurrentlyValid is the advisory validity used by the verify lookup. The scan
// path re-derives this itself so it can persist the expired transition.
func (p *Pass) CurrentlyValid(now time.Time) bool {
	return p.Status == PassActive && !now.Before(p.ValidFrom) && !now.After(p.ValidTo)
}
