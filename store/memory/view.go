package memory

import (
	"context"

	"github.com/xraph/parking"
	"github.com/xraph/parking/id"
	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/session"
	"github.com/xraph/parking/store"
)

var _ store.Registry = (*view)(nil)

// view operates on the store maps with the lock already held by its
// caller. When journal is set every write pushes an inverse operation onto
// undo.
type view struct {
	s       *Store
	journal bool
	undo    []func()
}

func (v *view) record(fn func()) {
	if v.journal {
		v.undo = append(v.undo, fn)
	}
}

func (v *view) rollback() {
	for i := len(v.undo) - 1; i >= 0; i-- {
		v.undo[i]()
	}
	v.undo = nil
}

func (v *view) CreateLot(_ context.Context, l *lot.Lot) error {
	if err := parking.ValidateLot(l); err != nil {
		return err
	}
	key := l.ID.String()
	if _, exists := v.s.lots[key]; exists {
		return parking.ValidationError{Field: "id", Message: "lot already exists"}
	}

	owner := l.Owner
	parking.PrepareLot(l)
	l.GlobalIndex = uint64(len(v.s.global))
	l.OwnerIndex = uint64(len(v.s.byOwner[l.Owner]))

	v.s.lots[key] = l.Clone()
	v.s.global = append(v.s.global, l.ID)
	v.s.byOwner[l.Owner] = append(v.s.byOwner[l.Owner], l.ID)
	v.s.occupants[key] = make(map[string]struct{})

	v.record(func() {
		delete(v.s.lots, key)
		delete(v.s.occupants, key)
		v.s.global = v.s.global[:len(v.s.global)-1]
		owned := v.s.byOwner[owner][:len(v.s.byOwner[owner])-1]
		if len(owned) == 0 {
			delete(v.s.byOwner, owner)
		} else {
			v.s.byOwner[owner] = owned
		}
	})
	return nil
}

func (v *view) GetLot(_ context.Context, lotID id.LotID) (*lot.Lot, error) {
	if l, ok := v.s.lots[lotID.String()]; ok {
		return l.Clone(), nil
	}
	return nil, parking.ErrNotFound
}

func (v *view) UpdateLot(_ context.Context, lotID id.LotID, mutate func(*lot.Lot) error) error {
	key := lotID.String()
	prev, ok := v.s.lots[key]
	if !ok {
		return parking.ErrNotFound
	}

	next := prev.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	if err := parking.CheckLotUpdate(prev, next); err != nil {
		return err
	}

	v.s.lots[key] = next
	v.record(func() { v.s.lots[key] = prev })
	return nil
}

func (v *view) ListLots(_ context.Context, opts lot.ListOpts) ([]*lot.Lot, error) {
	ids := v.s.global
	if opts.Owner != "" {
		ids = v.s.byOwner[opts.Owner]
	}

	start, end := paginate(len(ids), opts.Offset, opts.Limit)
	result := make([]*lot.Lot, 0, end-start)
	for _, lotID := range ids[start:end] {
		result = append(result, v.s.lots[lotID.String()].Clone())
	}
	return result, nil
}

func (v *view) LotCount(_ context.Context) (uint64, error) {
	return uint64(len(v.s.global)), nil
}

func (v *view) LotByIndex(_ context.Context, index uint64) (id.LotID, error) {
	if index >= uint64(len(v.s.global)) {
		return id.Nil, parking.ErrNotFound
	}
	return v.s.global[index], nil
}

func (v *view) OwnerLotCount(_ context.Context, owner string) (uint64, error) {
	return uint64(len(v.s.byOwner[owner])), nil
}

func (v *view) OwnerLotByIndex(_ context.Context, owner string, index uint64) (id.LotID, error) {
	owned := v.s.byOwner[owner]
	if index >= uint64(len(owned)) {
		return id.Nil, parking.ErrNotFound
	}
	return owned[index], nil
}

func (v *view) AddOccupant(_ context.Context, lotID id.LotID, userID string) error {
	set, ok := v.s.occupants[lotID.String()]
	if !ok {
		return parking.ErrNotFound
	}
	if _, present := set[userID]; present {
		return nil
	}
	set[userID] = struct{}{}
	v.record(func() { delete(set, userID) })
	return nil
}

func (v *view) RemoveOccupant(_ context.Context, lotID id.LotID, userID string) error {
	set, ok := v.s.occupants[lotID.String()]
	if !ok {
		return parking.ErrNotFound
	}
	if _, present := set[userID]; !present {
		return nil
	}
	delete(set, userID)
	v.record(func() { set[userID] = struct{}{} })
	return nil
}

func (v *view) Occupants(_ context.Context, lotID id.LotID) ([]string, error) {
	set, ok := v.s.occupants[lotID.String()]
	if !ok {
		return nil, parking.ErrNotFound
	}
	return sortedMembers(set), nil
}

func (v *view) SetSession(_ context.Context, sess *session.Session) error {
	user := sess.UserID
	if _, exists := v.s.sessions[user]; exists {
		return parking.ErrAlreadyParked
	}
	v.s.sessions[user] = sess.Clone()
	v.record(func() { delete(v.s.sessions, user) })
	return nil
}

func (v *view) GetSession(_ context.Context, userID string) (*session.Session, error) {
	if sess, ok := v.s.sessions[userID]; ok {
		return sess.Clone(), nil
	}
	return nil, parking.ErrNotFound
}

func (v *view) UpdateSession(_ context.Context, sess *session.Session) error {
	user := sess.UserID
	prev, ok := v.s.sessions[user]
	if !ok || prev.ID.String() != sess.ID.String() {
		return parking.ErrNotFound
	}
	v.s.sessions[user] = sess.Clone()
	v.record(func() { v.s.sessions[user] = prev })
	return nil
}

func (v *view) ClearSession(_ context.Context, userID string) error {
	prev, ok := v.s.sessions[userID]
	if !ok {
		return nil
	}
	delete(v.s.sessions, userID)
	v.record(func() { v.s.sessions[userID] = prev })
	return nil
}

func (v *view) AppendReceipt(_ context.Context, r *session.Receipt) error {
	c := *r
	user := c.UserID
	v.s.receipts[user] = append(v.s.receipts[user], &c)
	v.record(func() {
		list := v.s.receipts[user]
		if len(list) <= 1 {
			delete(v.s.receipts, user)
			return
		}
		v.s.receipts[user] = list[:len(list)-1]
	})
	return nil
}

func (v *view) ListReceipts(_ context.Context, userID string, opts session.ListOpts) ([]*session.Receipt, error) {
	list := v.s.receipts[userID]
	start, end := paginate(len(list), opts.Offset, opts.Limit)

	result := make([]*session.Receipt, 0, end-start)
	for i := start; i < end; i++ {
		c := *list[len(list)-1-i]
		result = append(result, &c)
	}
	return result, nil
}
