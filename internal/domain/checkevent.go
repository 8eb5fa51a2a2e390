package domain

import "time"

type CheckType string

const (
	CheckIn  CheckType = "check-in"
	CheckOut CheckType = "check-out"
)

// NextCheckType is the alternation rule: no history or a trailing check-out
// means the visitor is outside, so the next scan is a check-in; a trailing
// check-in means they are inside, so the next scan is a check-out.
func NextCheckType(last CheckType, hasLast bool) CheckType {
	if !hasLast || last == CheckOut {
		return CheckIn
	}
	return CheckOut
}

type ScanMethod string

const (
	MethodQRScan ScanMethod = "qr_scan"
	MethodManual ScanMethod = "manual"
)

// CheckEvent is one resolved scan. The log is append-only; the latest event
// for a pass is the only state the resolver consults.
type CheckEvent struct {
	ID        int64      `json:"id"`
	PassID    int64      `json:"pass_id"`
	VisitorID int64      `json:"visitor_id"`
	Type      CheckType  `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	ScannedBy int64      `json:"scanned_by"`
	Location  string     `json:"location"`
	Method    ScanMethod `json:"method"`
	Remarks   string     `json:"remarks,omitempty"`
}

// ScanResult is what the front desk sees: the resolved direction plus who the
// person on the pass is.
type ScanResult struct {
	Event   *CheckEvent `json:"event"`
	Type    CheckType   `json:"type"`
	Visitor *Visitor    `json:"visitor"`
	Host    *UserInfo   `json:"host,omitempty"`
}
