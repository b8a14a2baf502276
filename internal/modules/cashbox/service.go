package cashbox

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mvalderrama/electrocaja/internal/database"
	"github.com/mvalderrama/electrocaja/internal/domain"
	"github.com/mvalderrama/electrocaja/internal/events"
	"github.com/mvalderrama/electrocaja/internal/modules/ledger"
	"github.com/mvalderrama/electrocaja/internal/money"
)

// Service orchestrates the drawer lifecycle and the reconciliation flow.
// It owns the single in-memory count session and is the only writer of
// cash counts and ledger adjustments.
type Service struct {
	repo       *Repository
	ledgerRepo *ledger.Repository
	bus        *events.Bus
	log        zerolog.Logger

	mu      sync.Mutex
	session *CountSession
}

// NewService creates a new cashbox service.
func NewService(repo *Repository, ledgerRepo *ledger.Repository, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		ledgerRepo: ledgerRepo,
		bus:        bus,
		log:        log.With().Str("service", "cashbox").Logger(),
	}
}

// OpenDrawer opens a new drawer for today. Only one drawer may be open at a
// time; unresolved pending drawers also block opening, because their counts
// have to land in the books first.
func (s *Service) OpenDrawer(req OpenDrawerRequest) (*Drawer, error) {
	if req.OpenedBy == "" {
		return nil, validationErrorf("opened_by is required")
	}
	if req.OpeningLocal.IsNegative() || req.OpeningForeign.IsNegative() || req.OpeningMobile.IsNegative() {
		return nil, validationErrorf("opening amounts cannot be negative")
	}

	open, err := s.repo.GetOpenDrawer()
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, validationErrorf("a drawer is already open (opened by %s)", open.OpenedBy)
	}

	pending, err := s.repo.ListPendingDrawers()
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return nil, validationErrorf("%d pending drawer(s) must be resolved before opening", len(pending))
	}

	drawer, err := s.repo.CreateDrawer(req, time.Now().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("drawer_id", drawer.ID).Str("opened_by", drawer.OpenedBy).Msg("Drawer opened")
	s.bus.Emit(events.New(events.DrawerOpened, req.OpenedBy, &events.DrawerOpenedData{
		DrawerID:       drawer.ID,
		BusinessDate:   drawer.BusinessDate,
		OpenedBy:       drawer.OpenedBy,
		OpeningLocal:   money.Format(drawer.OpeningLocal),
		OpeningForeign: money.Format(drawer.OpeningForeign),
		OpeningMobile:  money.Format(drawer.OpeningMobile),
	}))
	return drawer, nil
}

// CurrentDrawer returns the open drawer, or nil when none is open.
func (s *Service) CurrentDrawer() (*Drawer, error) {
	return s.repo.GetOpenDrawer()
}

// AddTransaction records an income or expense against the open drawer.
// Rejected while a count session is active: the totals are frozen the moment
// counting starts.
func (s *Service) AddTransaction(drawerID string, req NewTransactionRequest) (*Transaction, error) {
	drawer, err := s.checkNewTransaction(drawerID, req)
	if err != nil {
		return nil, err
	}

	var t *Transaction
	err = database.WithTransaction(s.repo.DB(), func(tx *sql.Tx) error {
		var txErr error
		t, txErr = s.repo.AddTransactionTx(tx, drawer.ID, req)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	s.EmitTransactionAdded(t, req.CreatedBy)
	return t, nil
}

// AddTransactionTx records a transaction inside a caller-owned database
// transaction, so other writes in the same unit of work (consuming stock
// reservations for a sale) commit or roll back together with the drawer
// income. Validation and the drawer checks run the same as AddTransaction.
// The caller emits TransactionAdded via EmitTransactionAdded after commit.
func (s *Service) AddTransactionTx(tx *sql.Tx, drawerID string, req NewTransactionRequest) (*Transaction, error) {
	drawer, err := s.checkNewTransaction(drawerID, req)
	if err != nil {
		return nil, err
	}
	return s.repo.AddTransactionTx(tx, drawer.ID, req)
}

func (s *Service) checkNewTransaction(drawerID string, req NewTransactionRequest) (*Drawer, error) {
	if req.Amount.IsNegative() || req.Amount.IsZero() {
		return nil, validationErrorf("transaction amount must be positive")
	}
	if req.Kind != domain.KindIncome && req.Kind != domain.KindExpense {
		return nil, validationErrorf("unknown transaction kind %q", req.Kind)
	}
	if _, err := domain.ParseInstrument(string(req.Instrument)); err != nil {
		return nil, validationErrorf("%v", err)
	}
	if err := s.requireUnlocked(drawerID); err != nil {
		return nil, err
	}
	return s.requireOpenDrawer(drawerID)
}

// EmitTransactionAdded announces a committed transaction on the bus. Callers
// of AddTransactionTx invoke it only after their transaction commits.
func (s *Service) EmitTransactionAdded(t *Transaction, originUser string) {
	s.bus.Emit(events.New(events.TransactionAdded, originUser, &events.TransactionAddedData{
		TransactionID: t.ID,
		DrawerID:      t.DrawerID,
		Kind:          string(t.Kind),
		Category:      t.Category,
		Instrument:    string(t.Instrument),
		Amount:        money.Format(t.Amount),
		CreatedBy:     t.CreatedBy,
	}))
}

// RemoveTransaction deletes a transaction and reverses its totals.
func (s *Service) RemoveTransaction(drawerID, transactionID, removedBy string) (*Transaction, error) {
	if err := s.requireUnlocked(drawerID); err != nil {
		return nil, err
	}
	if _, err := s.requireOpenDrawer(drawerID); err != nil {
		return nil, err
	}

	var t *Transaction
	err := database.WithTransaction(s.repo.DB(), func(tx *sql.Tx) error {
		var txErr error
		t, txErr = s.repo.RemoveTransactionTx(tx, drawerID, transactionID)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	s.bus.Emit(events.New(events.TransactionRemoved, removedBy, &events.TransactionRemovedData{
		TransactionID: t.ID,
		DrawerID:      t.DrawerID,
		Kind:          string(t.Kind),
		Instrument:    string(t.Instrument),
		Amount:        money.Format(t.Amount),
	}))
	return t, nil
}

// ListTransactions returns the transactions of a drawer.
func (s *Service) ListTransactions(drawerID string) ([]*Transaction, error) {
	return s.repo.ListTransactions(drawerID)
}

// ListHistory returns closed and pending drawers, newest first.
func (s *Service) ListHistory(limit int) ([]*Drawer, error) {
	return s.repo.ListDrawerHistory(limit)
}

// ListPending returns drawers frozen by the end-of-day sweep.
func (s *Service) ListPending() ([]*Drawer, error) {
	return s.repo.ListPendingDrawers()
}

// GetDrawer returns a drawer by id, nil when not found.
func (s *Service) GetDrawer(id string) (*Drawer, error) {
	return s.repo.GetDrawer(id)
}

// ListCashCounts returns the persisted count results for a drawer.
func (s *Service) ListCashCounts(drawerID string) ([]*CashCount, error) {
	return s.repo.ListCashCounts(drawerID)
}

// ListAdjustments returns the ledger adjustments recorded against a drawer.
func (s *Service) ListAdjustments(drawerID string) ([]*ledger.Adjustment, error) {
	return s.ledgerRepo.ListByDrawer(drawerID)
}

// StartCount begins a reconciliation on the open drawer. All terminals are
// locked for the duration: nothing may move money while the count runs.
func (s *Service) StartCount(startedBy string) (*CountSession, error) {
	drawer, err := s.requireOpenDrawer("")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && s.session.Status != StatusComplete {
		return nil, validationErrorf("a count is already in progress (started by %s)", s.session.StartedBy)
	}

	s.session = &CountSession{
		DrawerID:  drawer.ID,
		StartedBy: startedBy,
		StartedAt: time.Now(),
		Status:    StatusCounting,
	}

	s.log.Info().Str("drawer_id", drawer.ID).Str("started_by", startedBy).Msg("Count started, locking terminals")
	s.bus.Emit(events.New(events.LockUsers, startedBy, &events.LockUsersData{
		Reason:      "cash-count",
		LockingUser: startedBy,
	}))
	return s.snapshotLocked(), nil
}

// SubmitCounts evaluates the counted amounts for the active session.
// A clean result closes the drawer immediately. A discrepant result parks
// the session in AWAITING_AUTHORIZATION; terminals stay locked until a
// supervisor authorizes the adjustments.
func (s *Service) SubmitCounts(submittedBy string, counted map[domain.Instrument]decimal.Decimal, note *string) (*CountSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil || s.session.Status == StatusComplete {
		return nil, validationErrorf("no count in progress")
	}

	drawer, err := s.repo.GetDrawer(s.session.DrawerID)
	if err != nil {
		return nil, err
	}
	if drawer == nil || drawer.Status != DrawerOpen {
		return nil, validationErrorf("drawer %s is no longer open", s.session.DrawerID)
	}

	results, discrepant, err := EvaluateCounts(drawer, counted)
	if err != nil {
		return nil, err
	}
	if err := s.session.submit(results, discrepant, note); err != nil {
		return nil, err
	}

	if discrepant {
		s.log.Warn().Str("drawer_id", drawer.ID).Msg("Count discrepant, awaiting authorization")
		return s.snapshotLocked(), nil
	}

	// Clean count: the submitter closes their own drawer, no sign-off needed.
	if err := s.finalizeLocked(drawer, submittedBy, nil); err != nil {
		// Finalization failed; reopen the submission so it can be retried.
		s.session.Status = StatusCounting
		return nil, err
	}
	return s.snapshotLocked(), nil
}

// AuthorizeCount lets a supervisor accept a discrepant count. The cash
// counts and the compensating adjustments are posted as one atomic batch;
// if any write fails the session stays authorizable and the whole batch is
// retried, never a partial one.
func (s *Service) AuthorizeCount(authorizedBy string) (*CountSession, error) {
	if authorizedBy == "" {
		return nil, validationErrorf("authorized_by is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, validationErrorf("no count in progress")
	}
	if err := s.session.authorize(); err != nil {
		return nil, err
	}

	drawer, err := s.repo.GetDrawer(s.session.DrawerID)
	if err != nil {
		s.session.Status = StatusAwaitingAuthorization
		return nil, err
	}

	if err := s.finalizeLocked(drawer, authorizedBy, &authorizedBy); err != nil {
		s.session.Status = StatusAwaitingAuthorization
		return nil, err
	}
	return s.snapshotLocked(), nil
}

// ActiveSession returns a snapshot of the in-progress count, nil when idle.
func (s *Service) ActiveSession() *CountSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.Status == StatusComplete {
		return nil
	}
	return s.snapshotLocked()
}

// CancelCount abandons a session that has not submitted counts yet and
// unlocks the terminals. Once counts are submitted and discrepant there is
// no cancellation: the discrepancy must be authorized.
func (s *Service) CancelCount(cancelledBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil || s.session.Status == StatusComplete {
		return validationErrorf("no count in progress")
	}
	if s.session.Status != StatusCounting {
		return validationErrorf("a discrepant count cannot be cancelled, it must be authorized")
	}

	s.session = nil
	s.bus.Emit(events.New(events.UnlockUsers, cancelledBy, &events.UnlockUsersData{
		Reason: "count-cancelled",
	}))
	return nil
}

// finalizeLocked persists counts (and adjustments, when discrepant), closes
// the drawer and unlocks terminals. Caller holds s.mu and has already moved
// the session to COMPLETE.
func (s *Service) finalizeLocked(drawer *Drawer, closedBy string, authorizedBy *string) error {
	session := s.session

	err := database.WithTransaction(s.repo.DB(), func(tx *sql.Tx) error {
		var adjustments []*ledger.Adjustment
		for _, res := range session.Results {
			count := &CashCount{
				DrawerID:     drawer.ID,
				Instrument:   res.Instrument,
				Expected:     res.Expected,
				Counted:      res.Counted,
				Difference:   res.Difference,
				Note:         session.Note,
				AuthorizedBy: authorizedBy,
			}
			if err := s.repo.InsertCashCountTx(tx, count); err != nil {
				return err
			}

			if !res.Discrepant {
				continue
			}
			direction := domain.KindIncome
			if res.Difference.IsNegative() {
				direction = domain.KindExpense
			}
			adjustments = append(adjustments, &ledger.Adjustment{
				DrawerID:     drawer.ID,
				CountID:      count.ID,
				Instrument:   res.Instrument,
				Direction:    direction,
				Amount:       res.Difference.Abs(),
				AuthorizedBy: *authorizedBy,
			})
		}

		if len(adjustments) > 0 {
			if err := s.ledgerRepo.InsertBatchTx(tx, adjustments); err != nil {
				return err
			}
		}

		return s.repo.CloseDrawerTx(tx, drawer.ID, closedBy)
	})
	if err != nil {
		return fmt.Errorf("failed to finalize count for drawer %s: %w", drawer.ID, err)
	}

	s.log.Info().
		Str("drawer_id", drawer.ID).
		Bool("discrepant", session.Discrepant).
		Msg("Drawer closed")

	s.bus.Emit(events.New(events.DrawerClosed, closedBy, &events.DrawerClosedData{
		DrawerID:   drawer.ID,
		ClosedBy:   closedBy,
		Discrepant: session.Discrepant,
	}))
	s.bus.Emit(events.New(events.UnlockUsers, closedBy, &events.UnlockUsersData{
		Reason: "count-complete",
	}))
	return nil
}

// AutoClosePending freezes every open drawer into PENDING_PHYSICAL_CLOSE.
// Run by the end-of-day sweep, and exposed for a manual admin trigger.
// Frozen drawers keep their totals; the physical count happens at resolution.
func (s *Service) AutoClosePending(reason string) ([]*Drawer, error) {
	open, err := s.repo.ListOpenDrawers()
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	err = database.WithTransaction(s.repo.DB(), func(tx *sql.Tx) error {
		for _, d := range open {
			if err := s.repo.MarkPendingPhysicalCloseTx(tx, d.ID, reason, d.OpenedBy); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to auto-close drawers: %w", err)
	}

	infos := make([]events.PendingDrawerInfo, 0, len(open))
	for _, d := range open {
		infos = append(infos, events.PendingDrawerInfo{
			DrawerID:        d.ID,
			BusinessDate:    d.BusinessDate,
			ResponsibleUser: d.OpenedBy,
		})
	}

	s.log.Warn().Int("drawers", len(open)).Str("reason", reason).Msg("Open drawers frozen pending physical close")
	s.bus.Emit(events.New(events.PendingDrawerAutoClosed, "", &events.PendingDrawerAutoClosedData{
		Drawers:  infos,
		ClosedAt: time.Now().UTC(),
		Reason:   reason,
	}))
	return open, nil
}

// ResolvePending counts a frozen drawer and closes it. Discrepancies here
// always require the resolver to take authorship of the adjustments: the
// sweep already flagged the drawer as abnormal.
func (s *Service) ResolvePending(drawerID, resolvedBy string, counted map[domain.Instrument]decimal.Decimal, note *string) (*Drawer, error) {
	if resolvedBy == "" {
		return nil, validationErrorf("resolved_by is required")
	}

	drawer, err := s.repo.GetDrawer(drawerID)
	if err != nil {
		return nil, err
	}
	if drawer == nil {
		return nil, validationErrorf("drawer %s not found", drawerID)
	}
	if drawer.Status != DrawerPendingPhysicalClose {
		return nil, validationErrorf("drawer %s is not pending physical close", drawerID)
	}

	results, _, err := EvaluateCounts(drawer, counted)
	if err != nil {
		return nil, err
	}

	err = database.WithTransaction(s.repo.DB(), func(tx *sql.Tx) error {
		var adjustments []*ledger.Adjustment
		for _, res := range results {
			count := &CashCount{
				DrawerID:     drawer.ID,
				Instrument:   res.Instrument,
				Expected:     res.Expected,
				Counted:      res.Counted,
				Difference:   res.Difference,
				Note:         note,
				AuthorizedBy: &resolvedBy,
			}
			if err := s.repo.InsertCashCountTx(tx, count); err != nil {
				return err
			}
			if !res.Discrepant {
				continue
			}
			direction := domain.KindIncome
			if res.Difference.IsNegative() {
				direction = domain.KindExpense
			}
			adjustments = append(adjustments, &ledger.Adjustment{
				DrawerID:     drawer.ID,
				CountID:      count.ID,
				Instrument:   res.Instrument,
				Direction:    direction,
				Amount:       res.Difference.Abs(),
				AuthorizedBy: resolvedBy,
			})
		}
		if len(adjustments) > 0 {
			if err := s.ledgerRepo.InsertBatchTx(tx, adjustments); err != nil {
				return err
			}
		}
		if err := s.repo.MarkResolvedTx(tx, drawer.ID, resolvedBy); err != nil {
			return err
		}
		return s.repo.CloseDrawerTx(tx, drawer.ID, resolvedBy)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pending drawer %s: %w", drawerID, err)
	}

	remaining, err := s.repo.ListPendingDrawers()
	if err != nil {
		return nil, err
	}

	s.bus.Emit(events.New(events.PendingDrawerResolved, resolvedBy, &events.PendingDrawerResolvedData{
		DrawerID:   drawer.ID,
		ResolvedBy: resolvedBy,
		Remaining:  len(remaining),
	}))
	if len(remaining) == 0 {
		s.bus.Emit(events.New(events.SystemUnlocked, resolvedBy, &events.SystemUnlockedData{
			Reason: "all-pending-resolved",
		}))
	}

	return s.repo.GetDrawer(drawer.ID)
}

// requireOpenDrawer loads the open drawer and, when an id is given, checks it
// matches.
func (s *Service) requireOpenDrawer(drawerID string) (*Drawer, error) {
	drawer, err := s.repo.GetOpenDrawer()
	if err != nil {
		return nil, err
	}
	if drawer == nil {
		return nil, validationErrorf("no drawer is open")
	}
	if drawerID != "" && drawer.ID != drawerID {
		return nil, validationErrorf("drawer %s is not the open drawer", drawerID)
	}
	return drawer, nil
}

// requireUnlocked rejects mutations while a count session holds the lock.
func (s *Service) requireUnlocked(drawerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && s.session.Status != StatusComplete && (drawerID == "" || s.session.DrawerID == drawerID) {
		return validationErrorf("drawer is locked by an in-progress count")
	}
	return nil
}

func (s *Service) snapshotLocked() *CountSession {
	if s.session == nil {
		return nil
	}
	cp := *s.session
	cp.Results = append([]InstrumentResult(nil), s.session.Results...)
	return &cp
}
