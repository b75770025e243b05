package sqlstore

import (
	"time"

	"gorm.io/datatypes"

	"github.com/xraph/parking/id"
	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/session"
	"github.com/xraph/parking/types"
)

// ==================== Lot models ====================

type lotModel struct {
	ID           string            `gorm:"primaryKey;size:64"`
	Owner        string            `gorm:"not null;size:255;uniqueIndex:idx_parking_lots_owner_ordinal,priority:1"`
	OwnerIndex   uint64            `gorm:"not null;uniqueIndex:idx_parking_lots_owner_ordinal,priority:2"`
	GlobalIndex  uint64            `gorm:"not null;uniqueIndex:idx_parking_lots_global_ordinal"`
	Latitude     int32             `gorm:"not null;default:0"`
	Longitude    int32             `gorm:"not null;default:0"`
	Capacity     uint32            `gorm:"not null"`
	Remain       uint32            `gorm:"not null"`
	Currency     string            `gorm:"not null;size:8"`
	MinPrice     int64             `gorm:"not null"`
	MaxPrice     int64             `gorm:"not null"`
	CurrentPrice int64             `gorm:"not null"`
	PricedAt     time.Time         `gorm:"not null"`
	Metadata     datatypes.JSONMap `gorm:"not null"`
	CreatedAt    time.Time         `gorm:"not null"`
	UpdatedAt    time.Time         `gorm:"not null"`
}

func (lotModel) TableName() string { return "parking_lots" }

func toLotModel(l *lot.Lot) *lotModel {
	meta := datatypes.JSONMap{}
	for k, v := range l.Metadata {
		meta[k] = v
	}
	return &lotModel{
		ID:           l.ID.String(),
		Owner:        l.Owner,
		OwnerIndex:   l.OwnerIndex,
		GlobalIndex:  l.GlobalIndex,
		Latitude:     l.Latitude,
		Longitude:    l.Longitude,
		Capacity:     l.Capacity,
		Remain:       l.Remain,
		Currency:     l.MinPrice.Currency,
		MinPrice:     l.MinPrice.Amount,
		MaxPrice:     l.MaxPrice.Amount,
		CurrentPrice: l.CurrentPrice.Amount,
		PricedAt:     l.PricedAt.UTC(),
		Metadata:     meta,
		CreatedAt:    l.CreatedAt.UTC(),
		UpdatedAt:    l.UpdatedAt.UTC(),
	}
}

func fromLotModel(m *lotModel) (*lot.Lot, error) {
	lotID, err := id.ParseLotID(m.ID)
	if err != nil {
		return nil, err
	}

	var meta map[string]string
	if len(m.Metadata) > 0 {
		meta = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			if s, ok := v.(string); ok {
				meta[k] = s
			}
		}
	}

	return &lot.Lot{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:           lotID,
		Owner:        m.Owner,
		Latitude:     m.Latitude,
		Longitude:    m.Longitude,
		Capacity:     m.Capacity,
		Remain:       m.Remain,
		MinPrice:     types.New(m.MinPrice, m.Currency),
		MaxPrice:     types.New(m.MaxPrice, m.Currency),
		CurrentPrice: types.New(m.CurrentPrice, m.Currency),
		PricedAt:     m.PricedAt.UTC(),
		OwnerIndex:   m.OwnerIndex,
		GlobalIndex:  m.GlobalIndex,
		Metadata:     meta,
	}, nil
}

// ==================== Occupant models ====================

type occupantModel struct {
	LotID     string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"primaryKey;size:255"`
	CreatedAt time.Time `gorm:"not null"`
}

func (occupantModel) TableName() string { return "parking_occupants" }

// ==================== Session models ====================

type sessionModel struct {
	UserID    string    `gorm:"primaryKey;size:255"`
	ID        string    `gorm:"not null;size:64;uniqueIndex:idx_parking_sessions_id"`
	LotID     string    `gorm:"not null;size:64;index:idx_parking_sessions_lot"`
	EnteredAt time.Time `gorm:"not null"`
	AccruedAt time.Time `gorm:"not null"`
	Currency  string    `gorm:"not null;size:8"`
	Fee       int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (sessionModel) TableName() string { return "parking_sessions" }

func toSessionModel(s *session.Session) *sessionModel {
	return &sessionModel{
		UserID:    s.UserID,
		ID:        s.ID.String(),
		LotID:     s.LotID.String(),
		EnteredAt: s.EnterTime.UTC(),
		AccruedAt: s.CurrentTime.UTC(),
		Currency:  s.CurrentFee.Currency,
		Fee:       s.CurrentFee.Amount,
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
	}
}

func fromSessionModel(m *sessionModel) (*session.Session, error) {
	sessID, err := id.ParseSessionID(m.ID)
	if err != nil {
		return nil, err
	}
	lotID, err := id.ParseLotID(m.LotID)
	if err != nil {
		return nil, err
	}

	return &session.Session{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:          sessID,
		UserID:      m.UserID,
		LotID:       lotID,
		EnterTime:   m.EnteredAt.UTC(),
		CurrentTime: m.AccruedAt.UTC(),
		CurrentFee:  types.New(m.Fee, m.Currency),
	}, nil
}

// ==================== Receipt models ====================

type receiptModel struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"not null;size:64;uniqueIndex:idx_parking_receipts_id"`
	SessionID string    `gorm:"not null;size:64"`
	UserID    string    `gorm:"not null;size:255;index:idx_parking_receipts_user"`
	LotID     string    `gorm:"not null;size:64;index:idx_parking_receipts_lot"`
	Owner     string    `gorm:"not null;size:255"`
	EnterTime time.Time `gorm:"not null"`
	ExitTime  time.Time `gorm:"not null"`
	Currency  string    `gorm:"not null;size:8"`
	UnitPrice int64     `gorm:"not null"`
	Fee       int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (receiptModel) TableName() string { return "parking_receipts" }

func toReceiptModel(r *session.Receipt) *receiptModel {
	return &receiptModel{
		ID:        r.ID.String(),
		SessionID: r.SessionID.String(),
		UserID:    r.UserID,
		LotID:     r.LotID.String(),
		Owner:     r.Owner,
		EnterTime: r.EnterTime.UTC(),
		ExitTime:  r.ExitTime.UTC(),
		Currency:  r.Fee.Currency,
		UnitPrice: r.UnitPrice.Amount,
		Fee:       r.Fee.Amount,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func fromReceiptModel(m *receiptModel) (*session.Receipt, error) {
	rcptID, err := id.ParseReceiptID(m.ID)
	if err != nil {
		return nil, err
	}
	sessID, err := id.ParseSessionID(m.SessionID)
	if err != nil {
		return nil, err
	}
	lotID, err := id.ParseLotID(m.LotID)
	if err != nil {
		return nil, err
	}

	return &session.Receipt{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:        rcptID,
		SessionID: sessID,
		UserID:    m.UserID,
		LotID:     lotID,
		Owner:     m.Owner,
		EnterTime: m.EnterTime.UTC(),
		ExitTime:  m.ExitTime.UTC(),
		UnitPrice: types.New(m.UnitPrice, m.Currency),
		Fee:       types.New(m.Fee, m.Currency),
	}, nil
}
