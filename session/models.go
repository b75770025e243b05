package session

import (
	"time"

	"github.com/xraph/parking/id"
	"github.com/xraph/parking/types"
)

// Session is a user's occupancy of a lot. A user holds at most one live
// session. CurrentTime marks how far CurrentFee has been accrued.
type Session struct {
	types.Entity
	ID          id.SessionID `json:"id"`
	UserID      string       `json:"user_id"`
	LotID       id.LotID     `json:"lot_id"`
	EnterTime   time.Time    `json:"enter_time"`
	CurrentTime time.Time    `json:"current_time"`
	CurrentFee  types.Money  `json:"current_fee"`
}

// Clone returns a copy of s.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}

// Receipt records a settled session.
type Receipt struct {
	types.Entity
	ID        id.ReceiptID `json:"id"`
	SessionID id.SessionID `json:"session_id"`
	UserID    string       `json:"user_id"`
	LotID     id.LotID     `json:"lot_id"`
	Owner     string       `json:"owner"`
	EnterTime time.Time    `json:"enter_time"`
	ExitTime  time.Time    `json:"exit_time"`
	UnitPrice types.Money  `json:"unit_price"`
	Fee       types.Money  `json:"fee"`
}

// Duration is how long the session was open.
func (r *Receipt) Duration() time.Duration {
	return r.ExitTime.Sub(r.EnterTime)
}
