// Package session defines parking sessions, settlement receipts and the
// registry operations over them.
package session

import "context"

// Store keeps live sessions keyed by user, plus closed-session receipts.
type Store interface {
	SetSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, userID string) (*Session, error)
	UpdateSession(ctx context.Context, s *Session) error
	ClearSession(ctx context.Context, userID string) error

	AppendReceipt(ctx context.Context, r *Receipt) error
	ListReceipts(ctx context.Context, userID string, opts ListOpts) ([]*Receipt, error)
}

// ListOpts pages ListReceipts. Receipts come back newest first.
type ListOpts struct {
	Limit  int
	Offset int
}
