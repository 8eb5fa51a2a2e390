package service

import (
	"context"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/platform/clock"
	"github.com/Virang41/visiting/internal/repo/postgres"
	"github.com/Virang41/visiting/pkg/events"
	"github.com/Virang41/visiting/pkg/logger"
)

// ScanService resolves gate scans against the pass state machine. Each scan
// is resolved inside a transaction holding the pass row, so the alternation
// decision and the appended event can never race another scan of the same
// pass.
type ScanService struct {
	checks postgres.CheckEventsRepo
	bus    events.Publisher
	clock  clock.Clock
}

func NewScanService(checks postgres.CheckEventsRepo, bus events.Publisher, clk clock.Clock) *ScanService {
	return &ScanService{checks: checks, bus: bus, clock: clk}
}

// ScanRequest carries the scanner's context for one scan. Method defaults to
// qr_scan and Location to the gate default when empty.
type ScanRequest struct {
	Token     string            `json:"token"`
	ScannedBy int64             `json:"-"`
	Location  string            `json:"location"`
	Method    domain.ScanMethod `json:"method"`
	Remarks   string            `json:"remarks"`
}

const defaultGateLocation = "Main Entrance"

// Resolve decides what a scan of the given token means right now and records
// it. Denials come back as domain errors: ErrNotFound for an unknown token,
// ErrRevoked, ErrExpired, ErrNotYetValid. An expired-window denial also
// persists the pass's expired status, and that write survives the denial.
func (s *ScanService) Resolve(ctx context.Context, req ScanRequest) (*domain.ScanResult, error) {
	if req.Method == "" {
		req.Method = domain.MethodQRScan
	}
	if req.Location == "" {
		req.Location = defaultGateLocation
	}
	now := s.clock.Now()

	var (
		result *domain.ScanResult
		denied error
	)
	ev, err := s.checks.ScanTx(ctx, req.Token, func(ctx context.Context, tx postgres.ScanTx) (*domain.CheckEvent, error) {
		pass := tx.Pass()

		switch pass.Status {
		case domain.PassRevoked:
			denied = domain.ErrRevoked
			return nil, nil
		case domain.PassExpired:
			denied = domain.ErrExpired
			return nil, nil
		}

		// Lazy expiry: the first scan after the window closes flips the
		// status. Returning nil keeps the transaction committing so the
		// flip outlives the denial.
		if now.After(pass.ValidTo) {
			if err := tx.SetPassStatus(ctx, domain.PassExpired); err != nil {
				return nil, err
			}
			denied = domain.ErrExpired
			return nil, nil
		}
		if now.Before(pass.ValidFrom) {
			denied = domain.ErrNotYetValid
			return nil, nil
		}

		last, hasLast, err := tx.LastType(ctx)
		if err != nil {
			return nil, err
		}
		next := domain.NextCheckType(last, hasLast)

		ev := &domain.CheckEvent{
			PassID:    pass.ID,
			VisitorID: pass.VisitorID,
			Type:      next,
			Timestamp: now,
			ScannedBy: req.ScannedBy,
			Location:  req.Location,
			Method:    req.Method,
			Remarks:   req.Remarks,
		}
		if err := tx.Append(ctx, ev); err != nil {
			return nil, err
		}

		// A check-in consumes the pass; the visitor can still check out on
		// a used pass inside the window.
		if next == domain.CheckIn && pass.Status == domain.PassActive {
			if err := tx.SetPassStatus(ctx, domain.PassUsed); err != nil {
				return nil, err
			}
		}

		result = &domain.ScanResult{
			Event:   ev,
			Type:    next,
			Visitor: tx.Visitor(),
			Host:    tx.Host(),
		}
		return ev, nil
	})
	if err != nil {
		return nil, err
	}
	if denied != nil {
		return nil, denied
	}

	if s.bus != nil {
		subject := events.VisitorCheckedIn
		if ev.Type == domain.CheckOut {
			subject = events.VisitorCheckedOut
		}
		payload := events.CheckEvent{
			PassID:    ev.PassID,
			VisitorID: ev.VisitorID,
			Type:      string(ev.Type),
			Location:  ev.Location,
			ScannedBy: ev.ScannedBy,
			At:        ev.Timestamp,
		}
		if err := s.bus.Publish(ctx, subject, payload); err != nil {
			logger.WarnContext(ctx, "Failed to publish check event", "error", err, "pass_id", ev.PassID)
		}
	}
	return result, nil
}

// Log lists check events matching the filter.
func (s *ScanService) Log(ctx context.Context, f postgres.CheckEventFilter) ([]domain.CheckEvent, error) {
	return s.checks.List(ctx, f)
}

// HistoryForPass returns the full event trail of one pass, oldest first.
func (s *ScanService) HistoryForPass(ctx context.Context, passID int64) ([]domain.CheckEvent, error) {
	return s.checks.ListForPass(ctx, passID)
}
