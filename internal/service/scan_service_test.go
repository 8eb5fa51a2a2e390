package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/platform/clock"
	"github.com/Virang41/visiting/internal/repo/postgres"
	"github.com/Virang41/visiting/internal/service"
)

// ---------- Mocks ----------

// mockChecksRepo keeps the pass and its event log in memory. Writes made
// inside fn are staged and applied only when fn returns without error,
// matching the transactional contract. The mutex stands in for the row
// lock: concurrent scans of the same repo run one at a time.
type mockChecksRepo struct {
	mu          sync.Mutex
	nextEventID int64
	passes      map[string]*domain.Pass
	visitors    map[int64]*domain.Visitor
	hosts       map[int64]*domain.UserInfo
	events      []domain.CheckEvent
}

func newMockChecksRepo() *mockChecksRepo {
	return &mockChecksRepo{
		nextEventID: 1,
		passes:      make(map[string]*domain.Pass),
		visitors:    make(map[int64]*domain.Visitor),
		hosts:       make(map[int64]*domain.UserInfo),
	}
}

type mockScanTx struct {
	repo *mockChecksRepo
	pass *domain.Pass
	vis  *domain.Visitor
	host *domain.UserInfo

	appended  *domain.CheckEvent
	newStatus *domain.PassStatus
}

func (t *mockScanTx) Pass() *domain.Pass       { return t.pass }
func (t *mockScanTx) Visitor() *domain.Visitor { return t.vis }
func (t *mockScanTx) Host() *domain.UserInfo   { return t.host }

func (t *mockScanTx) LastType(_ context.Context) (domain.CheckType, bool, error) {
	for i := len(t.repo.events) - 1; i >= 0; i-- {
		if t.repo.events[i].PassID == t.pass.ID {
			return t.repo.events[i].Type, true, nil
		}
	}
	return "", false, nil
}

func (t *mockScanTx) Append(_ context.Context, ev *domain.CheckEvent) error {
	ev.ID = t.repo.nextEventID
	t.repo.nextEventID++
	t.appended = ev
	return nil
}

func (t *mockScanTx) SetPassStatus(_ context.Context, status domain.PassStatus) error {
	t.newStatus = &status
	t.pass.Status = status
	return nil
}

func (m *mockChecksRepo) ScanTx(ctx context.Context, token string, fn func(ctx context.Context, tx postgres.ScanTx) (*domain.CheckEvent, error)) (*domain.CheckEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.passes[token]
	if !ok {
		return nil, domain.ErrNotFound
	}

	passCopy := *stored
	tx := &mockScanTx{
		repo: m,
		pass: &passCopy,
		vis:  m.visitors[stored.VisitorID],
		host: m.hosts[stored.HostID],
	}
	ev, err := fn(ctx, tx)
	if err != nil {
		return nil, err // rollback: staged writes dropped
	}
	if tx.appended != nil {
		m.events = append(m.events, *tx.appended)
	}
	if tx.newStatus != nil {
		stored.Status = *tx.newStatus
	}
	return ev, nil
}

func (m *mockChecksRepo) List(_ context.Context, f postgres.CheckEventFilter) ([]domain.CheckEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.CheckEvent
	for _, ev := range m.events {
		if f.Type != "" && ev.Type != f.Type {
			continue
		}
		if f.From != nil && ev.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && ev.Timestamp.After(*f.To) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (m *mockChecksRepo) ListForPass(_ context.Context, passID int64) ([]domain.CheckEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.CheckEvent
	for _, ev := range m.events {
		if ev.PassID == passID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// ---------- Test Setup ----------

// A pass for a 10:00 appointment of 30 minutes: scannable 09:30 to 11:30.
func setupScan(t *testing.T) (*service.ScanService, *mockChecksRepo, *domain.Pass, *clock.Fixed) {
	t.Helper()
	repo := newMockChecksRepo()

	scheduled := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	validFrom, validTo := domain.ValidityWindow(scheduled, 30)
	pass := &domain.Pass{
		ID: 1, Token: "tok-1", AppointmentID: 1, VisitorID: 1, HostID: 2,
		Location: "Main Office", ValidFrom: validFrom, ValidTo: validTo,
		Status: domain.PassActive,
	}
	repo.passes[pass.Token] = pass
	repo.visitors[1] = &domain.Visitor{ID: 1, Name: "Walk In"}
	repo.hosts[2] = &domain.UserInfo{ID: 2, Name: "Host", Role: domain.RoleEmployee}

	clk := &clock.Fixed{T: validFrom}
	return service.NewScanService(repo, &mockBus{}, clk), repo, pass, clk
}

func scanAt(t *testing.T, svc *service.ScanService, clk *clock.Fixed, at time.Time, token string) (*domain.ScanResult, error) {
	t.Helper()
	clk.T = at
	return svc.Resolve(context.Background(), service.ScanRequest{Token: token, ScannedBy: 9})
}

// ---------- Tests ----------

func TestScan_Lifecycle(t *testing.T) {
	svc, repo, pass, clk := setupScan(t)
	day := func(hh, mm int) time.Time {
		return time.Date(2025, 6, 1, hh, mm, 0, 0, time.UTC)
	}

	// 09:15, before the window opens.
	if _, err := scanAt(t, svc, clk, day(9, 15), pass.Token); !errors.Is(err, domain.ErrNotYetValid) {
		t.Fatalf("Expected ErrNotYetValid at 09:15, got %v", err)
	}
	if repo.passes[pass.Token].Status != domain.PassActive {
		t.Fatal("Early scan must not change pass status")
	}

	// 09:45, first scan inside the window: check-in, pass consumed.
	res, err := scanAt(t, svc, clk, day(9, 45), pass.Token)
	if err != nil {
		t.Fatalf("Scan at 09:45 failed: %v", err)
	}
	if res.Type != domain.CheckIn {
		t.Fatalf("Expected check-in, got %s", res.Type)
	}
	if repo.passes[pass.Token].Status != domain.PassUsed {
		t.Fatal("Check-in must flip the pass to used")
	}
	if res.Visitor == nil || res.Visitor.Name != "Walk In" {
		t.Fatal("Scan result should carry the visitor")
	}

	// 10:30, second scan: alternates to check-out, used pass still works.
	res, err = scanAt(t, svc, clk, day(10, 30), pass.Token)
	if err != nil {
		t.Fatalf("Scan at 10:30 failed: %v", err)
	}
	if res.Type != domain.CheckOut {
		t.Fatalf("Expected check-out, got %s", res.Type)
	}

	// 11:00, third scan: back to check-in.
	res, err = scanAt(t, svc, clk, day(11, 0), pass.Token)
	if err != nil {
		t.Fatalf("Scan at 11:00 failed: %v", err)
	}
	if res.Type != domain.CheckIn {
		t.Fatalf("Expected check-in, got %s", res.Type)
	}

	// 11:45, past the window: denied, and the expiry is persisted.
	if _, err := scanAt(t, svc, clk, day(11, 45), pass.Token); !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("Expected ErrExpired at 11:45, got %v", err)
	}
	if repo.passes[pass.Token].Status != domain.PassExpired {
		t.Fatal("Expired status must be persisted despite the denial")
	}

	// Another late scan takes the status branch, same answer.
	if _, err := scanAt(t, svc, clk, day(11, 50), pass.Token); !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("Expected ErrExpired at 11:50, got %v", err)
	}

	events, _ := repo.ListForPass(context.Background(), pass.ID)
	if len(events) != 3 {
		t.Fatalf("Expected 3 recorded events, got %d", len(events))
	}
}

func TestScan_ConcurrentScansAlternate(t *testing.T) {
	svc, repo, pass, clk := setupScan(t)
	clk.T = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	const scans = 8
	var wg sync.WaitGroup
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Resolve(context.Background(), service.ScanRequest{Token: pass.Token, ScannedBy: 9}); err != nil {
				t.Errorf("Resolve failed: %v", err)
			}
		}()
	}
	wg.Wait()

	events, err := repo.ListForPass(context.Background(), pass.ID)
	if err != nil {
		t.Fatalf("ListForPass failed: %v", err)
	}
	if len(events) != scans {
		t.Fatalf("Expected %d events, got %d", scans, len(events))
	}
	for i, ev := range events {
		want := domain.CheckIn
		if i%2 == 1 {
			want = domain.CheckOut
		}
		if ev.Type != want {
			t.Fatalf("Event %d: expected %s, got %s", i, want, ev.Type)
		}
	}
	if repo.passes[pass.Token].Status != domain.PassUsed {
		t.Fatalf("Expected used status, got %s", repo.passes[pass.Token].Status)
	}
}

func TestScan_WindowBoundaries(t *testing.T) {
	svc, _, pass, clk := setupScan(t)

	// Both window edges are inclusive.
	if _, err := scanAt(t, svc, clk, pass.ValidFrom, pass.Token); err != nil {
		t.Fatalf("Scan at valid_from should pass, got %v", err)
	}
	if _, err := scanAt(t, svc, clk, pass.ValidTo, pass.Token); err != nil {
		t.Fatalf("Scan at valid_to should pass, got %v", err)
	}
}

func TestScan_Revoked(t *testing.T) {
	svc, repo, pass, clk := setupScan(t)
	repo.passes[pass.Token].Status = domain.PassRevoked

	if _, err := scanAt(t, svc, clk, pass.ValidFrom.Add(time.Minute), pass.Token); !errors.Is(err, domain.ErrRevoked) {
		t.Fatalf("Expected ErrRevoked, got %v", err)
	}
	if len(repo.events) != 0 {
		t.Fatal("Revoked scan must not record an event")
	}
}

func TestScan_UnknownToken(t *testing.T) {
	svc, _, _, clk := setupScan(t)
	if _, err := scanAt(t, svc, clk, clk.T, "no-such-token"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestScan_Defaults(t *testing.T) {
	svc, repo, pass, clk := setupScan(t)
	clk.T = pass.ValidFrom.Add(time.Minute)

	res, err := svc.Resolve(context.Background(), service.ScanRequest{Token: pass.Token, ScannedBy: 9})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Event.Method != domain.MethodQRScan {
		t.Fatalf("Expected qr_scan default, got %s", res.Event.Method)
	}
	if res.Event.Location != "Main Entrance" {
		t.Fatalf("Expected default gate location, got %q", res.Event.Location)
	}
	if res.Event.ScannedBy != 9 {
		t.Fatalf("Expected scanner id recorded, got %d", res.Event.ScannedBy)
	}

	clk.T = clk.T.Add(time.Minute)
	res, err = svc.Resolve(context.Background(), service.ScanRequest{
		Token: pass.Token, ScannedBy: 9, Location: "Loading Dock", Method: domain.MethodManual, Remarks: "forgot badge",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Event.Location != "Loading Dock" || res.Event.Method != domain.MethodManual || res.Event.Remarks != "forgot badge" {
		t.Fatalf("Explicit fields should be kept: %+v", res.Event)
	}
	if len(repo.events) != 2 {
		t.Fatalf("Expected 2 recorded events, got %d", len(repo.events))
	}
}
