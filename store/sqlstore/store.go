// Package sqlstore implements store.Store on a relational database through
// GORM. PostgreSQL is the production target; SQLite (pure Go) serves tests
// and single-node deployments.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/xraph/parking"
	"github.com/xraph/parking/id"
	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/session"
	"github.com/xraph/parking/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using GORM.
type Store struct {
	*registry
	db *gorm.DB
}

// New wraps an open GORM handle.
func New(db *gorm.DB) *Store {
	return &Store{registry: &registry{db: db}, db: db}
}

// OpenPostgres connects to PostgreSQL with the given DSN.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("parking/sqlstore: open postgres: %w", err)
	}
	return New(db), nil
}

// OpenSQLite opens a SQLite database at path. Use
// "file::memory:?cache=shared" for a throwaway in-process database.
func OpenSQLite(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("parking/sqlstore: open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("parking/sqlstore: open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection avoids "database is locked".
	sqlDB.SetMaxOpenConns(1)
	return New(db), nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the underlying GORM handle for direct access.
func (s *Store) DB() *gorm.DB { return s.db }

// Transact runs fn inside a database transaction.
func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context, tx store.Registry) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &registry{db: tx})
	})
}

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&lotModel{},
		&occupantModel{},
		&sessionModel{},
		&receiptModel{},
	)
	if err != nil {
		return fmt.Errorf("%w: %w", parking.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// registry runs every Registry method against db, which is either the
// root handle or a transaction.
type registry struct {
	db *gorm.DB
}

// ==================== Lot methods ====================

func (r *registry) CreateLot(ctx context.Context, l *lot.Lot) error {
	if err := parking.ValidateLot(l); err != nil {
		return err
	}

	return r.atomically(ctx, func(db *gorm.DB) error {
		var total, owned int64
		if err := db.Model(&lotModel{}).Count(&total).Error; err != nil {
			return err
		}
		if err := db.Model(&lotModel{}).Where("owner = ?", l.Owner).Count(&owned).Error; err != nil {
			return err
		}

		next := l.Clone()
		parking.PrepareLot(next)
		next.GlobalIndex = uint64(total)
		next.OwnerIndex = uint64(owned)

		if err := db.Create(toLotModel(next)).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return fmt.Errorf("%w: %w", parking.ErrTransactionFailed, err)
			}
			return err
		}
		*l = *next
		return nil
	})
}

func (r *registry) GetLot(ctx context.Context, lotID id.LotID) (*lot.Lot, error) {
	m := new(lotModel)
	if err := r.db.WithContext(ctx).Where("id = ?", lotID.String()).First(m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return fromLotModel(m)
}

func (r *registry) UpdateLot(ctx context.Context, lotID id.LotID, mutate func(*lot.Lot) error) error {
	return r.atomically(ctx, func(db *gorm.DB) error {
		q := db.Where("id = ?", lotID.String())
		if db.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		m := new(lotModel)
		if err := q.First(m).Error; err != nil {
			return mapNotFound(err)
		}
		prev, err := fromLotModel(m)
		if err != nil {
			return err
		}

		next := prev.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		if err := parking.CheckLotUpdate(prev, next); err != nil {
			return err
		}

		updated := toLotModel(next)
		return db.Model(&lotModel{}).Where("id = ?", m.ID).Updates(map[string]any{
			"latitude":      updated.Latitude,
			"longitude":     updated.Longitude,
			"remain":        updated.Remain,
			"current_price": updated.CurrentPrice,
			"priced_at":     updated.PricedAt,
			"metadata":      updated.Metadata,
			"updated_at":    updated.UpdatedAt,
		}).Error
	})
}

func (r *registry) ListLots(ctx context.Context, opts lot.ListOpts) ([]*lot.Lot, error) {
	q := r.db.WithContext(ctx).Model(&lotModel{})
	if opts.Owner != "" {
		q = q.Where("owner = ?", opts.Owner).Order("owner_index asc")
	} else {
		q = q.Order("global_index asc")
	}
	q = paginate(q, opts.Offset, opts.Limit)

	var models []lotModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	models = trimOffset(models, opts.Offset, opts.Limit)

	result := make([]*lot.Lot, 0, len(models))
	for i := range models {
		l, err := fromLotModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, nil
}

func (r *registry) LotCount(ctx context.Context) (uint64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&lotModel{}).Count(&n).Error
	return uint64(n), err
}

func (r *registry) LotByIndex(ctx context.Context, index uint64) (id.LotID, error) {
	m := new(lotModel)
	err := r.db.WithContext(ctx).Select("id").Where("global_index = ?", index).First(m).Error
	if err != nil {
		return id.Nil, mapNotFound(err)
	}
	return id.ParseLotID(m.ID)
}

func (r *registry) OwnerLotCount(ctx context.Context, owner string) (uint64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&lotModel{}).Where("owner = ?", owner).Count(&n).Error
	return uint64(n), err
}

func (r *registry) OwnerLotByIndex(ctx context.Context, owner string, index uint64) (id.LotID, error) {
	m := new(lotModel)
	err := r.db.WithContext(ctx).Select("id").
		Where("owner = ? AND owner_index = ?", owner, index).
		First(m).Error
	if err != nil {
		return id.Nil, mapNotFound(err)
	}
	return id.ParseLotID(m.ID)
}

// ==================== Occupant methods ====================

func (r *registry) AddOccupant(ctx context.Context, lotID id.LotID, userID string) error {
	return r.atomically(ctx, func(db *gorm.DB) error {
		if err := r.requireLot(db, lotID); err != nil {
			return err
		}
		return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&occupantModel{
			LotID:     lotID.String(),
			UserID:    userID,
			CreatedAt: time.Now().UTC(),
		}).Error
	})
}

func (r *registry) RemoveOccupant(ctx context.Context, lotID id.LotID, userID string) error {
	return r.atomically(ctx, func(db *gorm.DB) error {
		if err := r.requireLot(db, lotID); err != nil {
			return err
		}
		return db.Where("lot_id = ? AND user_id = ?", lotID.String(), userID).
			Delete(&occupantModel{}).Error
	})
}

func (r *registry) Occupants(ctx context.Context, lotID id.LotID) ([]string, error) {
	db := r.db.WithContext(ctx)
	if err := r.requireLot(db, lotID); err != nil {
		return nil, err
	}

	users := make([]string, 0)
	err := db.Model(&occupantModel{}).
		Where("lot_id = ?", lotID.String()).
		Order("user_id asc").
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// ==================== Session methods ====================

func (r *registry) SetSession(ctx context.Context, s *session.Session) error {
	err := r.db.WithContext(ctx).Create(toSessionModel(s)).Error
	if isDuplicateKeyErr(err) {
		return parking.ErrAlreadyParked
	}
	return err
}

func (r *registry) GetSession(ctx context.Context, userID string) (*session.Session, error) {
	m := new(sessionModel)
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return fromSessionModel(m)
}

func (r *registry) UpdateSession(ctx context.Context, s *session.Session) error {
	m := toSessionModel(s)
	res := r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("user_id = ? AND id = ?", m.UserID, m.ID).
		Updates(map[string]any{
			"accrued_at": m.AccruedAt,
			"currency":   m.Currency,
			"fee":        m.Fee,
			"updated_at": m.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return parking.ErrNotFound
	}
	return nil
}

func (r *registry) ClearSession(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&sessionModel{}).Error
}

// ==================== Receipt methods ====================

func (r *registry) AppendReceipt(ctx context.Context, rc *session.Receipt) error {
	return r.db.WithContext(ctx).Create(toReceiptModel(rc)).Error
}

func (r *registry) ListReceipts(ctx context.Context, userID string, opts session.ListOpts) ([]*session.Receipt, error) {
	q := r.db.WithContext(ctx).Model(&receiptModel{}).
		Where("user_id = ?", userID).
		Order("seq desc")
	q = paginate(q, opts.Offset, opts.Limit)

	var models []receiptModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	models = trimOffset(models, opts.Offset, opts.Limit)

	result := make([]*session.Receipt, 0, len(models))
	for i := range models {
		rc, err := fromReceiptModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, rc)
	}
	return result, nil
}

// ==================== helpers ====================

// atomically runs fn in a transaction, or in a savepoint when r is already
// bound to one.
func (r *registry) atomically(ctx context.Context, fn func(db *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *registry) requireLot(db *gorm.DB, lotID id.LotID) error {
	var n int64
	if err := db.Model(&lotModel{}).Where("id = ?", lotID.String()).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return parking.ErrNotFound
	}
	return nil
}

// paginate pushes limit and offset into SQL when a limit is set. SQLite
// rejects OFFSET without LIMIT, so a bare offset is applied by trimOffset.
func paginate(q *gorm.DB, offset, limit int) *gorm.DB {
	if limit > 0 {
		q = q.Limit(limit)
		if offset > 0 {
			q = q.Offset(offset)
		}
	}
	return q
}

func trimOffset[T any](rows []T, offset, limit int) []T {
	if limit > 0 || offset <= 0 {
		return rows
	}
	if offset >= len(rows) {
		return rows[:0]
	}
	return rows[offset:]
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return parking.ErrNotFound
	}
	return err
}

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
