package parking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/parking/auth"
	"github.com/xraph/parking/clock"
	"github.com/xraph/parking/funds"
	"github.com/xraph/parking/id"
	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/plugin"
	"github.com/xraph/parking/pricing"
	"github.com/xraph/parking/session"
	"github.com/xraph/parking/store"
	"github.com/xraph/parking/types"
)

// DefaultCurrency prices lots whose parameters carry no currency.
const DefaultCurrency = "usd"

// Engine is the parking lifecycle controller. Every mutating operation
// runs as one store transaction: it either commits all of its registry
// writes and the fee transfer, or none of them.
type Engine struct {
	store   store.Store
	funds   funds.Transferer
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   clock.Clock
	auth    auth.Authenticator

	currency string
}

// New creates a new Engine on s that settles fees through f.
func New(s store.Store, f funds.Transferer, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		funds:    f,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		clock:    clock.System(),
		auth:     auth.ContextAuthenticator{},
		currency: DefaultCurrency,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithAuthenticator sets how the caller of each operation is resolved.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(e *Engine) {
		e.auth = a
	}
}

// WithDefaultCurrency sets the currency used when lot prices carry none.
func WithDefaultCurrency(currency string) Option {
	return func(e *Engine) {
		e.currency = strings.ToLower(currency)
	}
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}
	e.Init(ctx)
	return nil
}

// Init initializes plugins without touching the schema. Start calls it
// after migrating; hosts that manage migrations themselves call it directly.
func (e *Engine) Init(ctx context.Context) {
	e.plugins.EmitInit(ctx, e)

	e.logger.Info("parking engine started",
		"plugins", e.plugins.Count(),
		"currency", e.currency,
	)
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// now truncates to the millisecond, the resolution fees are computed at.
func (e *Engine) now() time.Time {
	return e.clock.Now().UTC().Truncate(time.Millisecond)
}

func (e *Engine) caller(ctx context.Context) (string, error) {
	account, err := e.auth.Authenticate(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if account == "" {
		return "", ErrUnauthorized
	}
	return account, nil
}

// ──────────────────────────────────────────────────
// Lot management
// ──────────────────────────────────────────────────

// CreateLot registers a lot owned by the caller.
func (e *Engine) CreateLot(ctx context.Context, p lot.Params) (*lot.Lot, error) {
	owner, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	l := &lot.Lot{
		Entity:    types.NewEntityAt(now),
		ID:        id.NewLotID(),
		Owner:     owner,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Capacity:  p.Capacity,
		MinPrice:  e.withCurrency(p.MinPrice),
		MaxPrice:  e.withCurrency(p.MaxPrice),
		PricedAt:  now,
		Metadata:  p.Metadata,
	}
	if err := ValidateLot(l); err != nil {
		return nil, err
	}

	if err := e.store.Transact(ctx, func(ctx context.Context, tx store.Registry) error {
		return tx.CreateLot(ctx, l)
	}); err != nil {
		return nil, err
	}

	e.logger.Debug("lot created",
		"lot_id", l.ID.String(),
		"owner", owner,
		"capacity", l.Capacity,
		"min_price", l.MinPrice.String(),
		"max_price", l.MaxPrice.String(),
	)
	e.plugins.EmitLotCreated(ctx, l.Clone())
	return l, nil
}

func (e *Engine) withCurrency(m types.Money) types.Money {
	if m.Currency == "" {
		m.Currency = e.currency
	}
	return m
}

// ──────────────────────────────────────────────────
// Session lifecycle
// ──────────────────────────────────────────────────

// Enter parks the caller in lotID. The lot's price is recomputed from its
// post-entry occupancy.
func (e *Engine) Enter(ctx context.Context, lotID id.LotID) (*session.Session, error) {
	user, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}

	var (
		sess    *session.Session
		updated *lot.Lot
	)
	err = e.store.Transact(ctx, func(ctx context.Context, tx store.Registry) error {
		// Read the clock under the store lock so PricedAt never runs ahead of now.
		now := e.now()
		l, err := tx.GetLot(ctx, lotID)
		if err != nil {
			return err
		}
		if l.Full() {
			return ErrLotFull
		}
		if _, err := tx.GetSession(ctx, user); err == nil {
			return ErrAlreadyParked
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if err := tx.UpdateLot(ctx, lotID, func(l *lot.Lot) error {
			l.Remain--
			if err := reprice(l, now); err != nil {
				return err
			}
			updated = l.Clone()
			return nil
		}); err != nil {
			return err
		}
		if err := tx.AddOccupant(ctx, lotID, user); err != nil {
			return err
		}

		sess = &session.Session{
			Entity:      types.NewEntityAt(now),
			ID:          id.NewSessionID(),
			UserID:      user,
			LotID:       lotID,
			EnterTime:   now,
			CurrentTime: now,
			CurrentFee:  types.Zero(l.MinPrice.Currency),
		}
		return tx.SetSession(ctx, sess)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("entered lot",
		"lot_id", lotID.String(),
		"user", user,
		"session_id", sess.ID.String(),
		"remain", updated.Remain,
		"price", updated.CurrentPrice.String(),
	)
	e.plugins.EmitEntered(ctx, sess.Clone(), updated)
	return sess, nil
}

// Refresh accrues the caller's fee up to now without leaving.
func (e *Engine) Refresh(ctx context.Context) (*session.Session, error) {
	user, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}

	var (
		sess    *session.Session
		accrued types.Money
	)
	err = e.store.Transact(ctx, func(ctx context.Context, tx store.Registry) error {
		now := e.now()
		s, err := tx.GetSession(ctx, user)
		if err != nil {
			return err
		}
		l, err := tx.GetLot(ctx, s.LotID)
		if err != nil {
			return err
		}

		fee, _, err := accrue(l, s, now)
		if err != nil {
			return err
		}
		accrued = fee.WithAmount(fee.Amount - s.CurrentFee.Amount)

		s.CurrentFee = fee
		s.CurrentTime = now
		s.Touch(now)
		if err := tx.UpdateSession(ctx, s); err != nil {
			return err
		}
		sess = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("session refreshed",
		"session_id", sess.ID.String(),
		"user", user,
		"fee", sess.CurrentFee.String(),
	)
	e.plugins.EmitSessionRefreshed(ctx, sess.Clone(), accrued)
	return sess, nil
}

// Leave settles the caller's session: the final fee moves from the caller
// to the lot owner and the slot is released. If the transfer is declined
// nothing changes and ErrSettlementFailed is returned.
func (e *Engine) Leave(ctx context.Context) (*session.Receipt, error) {
	user, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}

	var (
		receipt *session.Receipt
		updated *lot.Lot
		live    *session.Session
		owed    types.Money
	)
	err = e.store.Transact(ctx, func(ctx context.Context, tx store.Registry) error {
		now := e.now()
		s, err := tx.GetSession(ctx, user)
		if err != nil {
			return err
		}
		l, err := tx.GetLot(ctx, s.LotID)
		if err != nil {
			return err
		}
		live = s

		fee, unitPrice, err := accrue(l, s, now)
		if err != nil {
			return err
		}
		owed = fee

		if err := tx.UpdateLot(ctx, l.ID, func(l *lot.Lot) error {
			l.Remain++
			if err := reprice(l, now); err != nil {
				return err
			}
			updated = l.Clone()
			return nil
		}); err != nil {
			return err
		}
		if err := tx.RemoveOccupant(ctx, l.ID, user); err != nil {
			return err
		}
		if err := tx.ClearSession(ctx, user); err != nil {
			return err
		}

		receipt = &session.Receipt{
			Entity:    types.NewEntityAt(now),
			ID:        id.NewReceiptID(),
			SessionID: s.ID,
			UserID:    user,
			LotID:     l.ID,
			Owner:     l.Owner,
			EnterTime: s.EnterTime,
			ExitTime:  now,
			UnitPrice: l.MinPrice.WithAmount(unitPrice),
			Fee:       fee,
		}
		if err := tx.AppendReceipt(ctx, receipt); err != nil {
			return err
		}

		// The transfer is the last step so a declined payment rolls back
		// every registry write above.
		if fee.IsPositive() {
			if err := e.funds.Transfer(ctx, user, l.Owner, fee); err != nil {
				return fmt.Errorf("%w: %w", ErrSettlementFailed, err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSettlementFailed) && live != nil {
			e.logger.Warn("settlement failed",
				"session_id", live.ID.String(),
				"user", user,
				"fee", owed.String(),
				"error", err,
			)
			e.plugins.EmitSettlementFailed(ctx, live, owed, err)
		}
		return nil, err
	}

	e.logger.Debug("left lot",
		"lot_id", receipt.LotID.String(),
		"user", user,
		"fee", receipt.Fee.String(),
		"remain", updated.Remain,
	)
	settled := *receipt
	e.plugins.EmitLeft(ctx, &settled, updated)
	return receipt, nil
}

// Quote returns the fee the caller would owe on leaving now, without
// changing anything.
func (e *Engine) Quote(ctx context.Context) (types.Money, error) {
	user, err := e.caller(ctx)
	if err != nil {
		return types.Money{}, err
	}

	s, err := e.store.GetSession(ctx, user)
	if err != nil {
		return types.Money{}, err
	}
	l, err := e.store.GetLot(ctx, s.LotID)
	if err != nil {
		return types.Money{}, err
	}

	fee, _, err := accrue(l, s, e.now())
	return fee, err
}

// accrue returns the session's total fee at now: what it already owes
// plus the interval since it was last brought up to date, charged at the
// lot's present occupancy. It also returns the unit price used.
func accrue(l *lot.Lot, s *session.Session, now time.Time) (types.Money, int64, error) {
	q, err := pricing.ComputeNewFee(pricing.InputFor(l, s.CurrentTime, now))
	if err != nil {
		return types.Money{}, 0, err
	}
	total, err := s.CurrentFee.CheckedAdd(s.CurrentFee.WithAmount(q.Fee))
	if err != nil {
		if errors.Is(err, types.ErrOverflow) {
			return types.Money{}, 0, ErrFeeOverflow
		}
		return types.Money{}, 0, err
	}
	return total, q.UnitPrice, nil
}

// reprice recomputes l's unit price from its current occupancy and moves
// its pricing clock to now.
func reprice(l *lot.Lot, now time.Time) error {
	q, err := pricing.ComputeNewFee(pricing.InputFor(l, l.PricedAt, now))
	if err != nil {
		return err
	}
	l.CurrentPrice = l.MinPrice.WithAmount(q.UnitPrice)
	l.PricedAt = now
	l.Touch(now)
	return nil
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// GetLot retrieves a lot by ID.
func (e *Engine) GetLot(ctx context.Context, lotID id.LotID) (*lot.Lot, error) {
	return e.store.GetLot(ctx, lotID)
}

// ListLots lists lots in creation order.
func (e *Engine) ListLots(ctx context.Context, opts lot.ListOpts) ([]*lot.Lot, error) {
	return e.store.ListLots(ctx, opts)
}

// ListOwnerLots lists owner's lots in the order they were created.
func (e *Engine) ListOwnerLots(ctx context.Context, owner string, opts lot.ListOpts) ([]*lot.Lot, error) {
	opts.Owner = owner
	return e.store.ListLots(ctx, opts)
}

// LotCount returns the number of lots ever created.
func (e *Engine) LotCount(ctx context.Context) (uint64, error) {
	return e.store.LotCount(ctx)
}

// OwnerLotCount returns how many lots owner has created.
func (e *Engine) OwnerLotCount(ctx context.Context, owner string) (uint64, error) {
	return e.store.OwnerLotCount(ctx, owner)
}

// LotByIndex returns the lot at a global ordinal.
func (e *Engine) LotByIndex(ctx context.Context, index uint64) (id.LotID, error) {
	return e.store.LotByIndex(ctx, index)
}

// OwnerLotByIndex returns the lot at an owner's ordinal.
func (e *Engine) OwnerLotByIndex(ctx context.Context, owner string, index uint64) (id.LotID, error) {
	return e.store.OwnerLotByIndex(ctx, owner, index)
}

// Occupants lists the users currently parked in a lot.
func (e *Engine) Occupants(ctx context.Context, lotID id.LotID) ([]string, error) {
	return e.store.Occupants(ctx, lotID)
}

// CurrentSession returns the caller's live session.
func (e *Engine) CurrentSession(ctx context.Context) (*session.Session, error) {
	user, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	return e.store.GetSession(ctx, user)
}

// Session returns the live session of user.
func (e *Engine) Session(ctx context.Context, user string) (*session.Session, error) {
	return e.store.GetSession(ctx, user)
}

// Receipts lists user's settled sessions, newest first.
func (e *Engine) Receipts(ctx context.Context, user string, opts session.ListOpts) ([]*session.Receipt, error) {
	return e.store.ListReceipts(ctx, user, opts)
}
