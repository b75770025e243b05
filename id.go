package parking

import "github.com/xraph/parking/id"

// ID is the primary identifier type for all parking entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// Typed aliases for the entity identifiers.
type (
	LotID     = id.LotID
	SessionID = id.SessionID
	ReceiptID = id.ReceiptID
)
