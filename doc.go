// Package parking provides a parking-lot registry with occupancy-driven
// pricing and atomic fee settlement for Go applications.
//
// Parking is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - A registry of lots, live sessions and settlement receipts
//   - Dynamic unit pricing that rises linearly with occupancy
//   - Checked 64-bit integer fee arithmetic with explicit failure modes
//   - Exit settlement that commits the fee transfer and the registry
//     update together or not at all
//   - SQL (PostgreSQL, SQLite) and in-memory stores
//   - Redis-backed balances, Kafka event publishing and Prometheus metrics
//     as plugins
//
// # Quick Start
//
// Create an engine with your preferred store and funds backend:
//
//	import (
//	    "github.com/xraph/parking"
//	    "github.com/xraph/parking/funds"
//	    "github.com/xraph/parking/store/sqlstore"
//	)
//
//	store, err := sqlstore.OpenPostgres(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	e := parking.New(store, funds.NewLedger())
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
// # Core Concepts
//
// Every operation acts on behalf of the caller, resolved from the context
// by an auth.Authenticator:
//
//	ctx = auth.WithAccount(ctx, "alice")
//
// Owners register lots with a capacity and a price range:
//
//	l, err := e.CreateLot(ctx, lot.Params{
//	    Capacity: 10,
//	    MinPrice: parking.USD(100),
//	    MaxPrice: parking.USD(200),
//	})
//
// Users enter, optionally refresh their accrued fee, and leave:
//
//	sess, err := e.Enter(ctx, l.ID)
//	fee, err := e.Quote(ctx)
//	receipt, err := e.Leave(ctx)
//
// The unit price of a lot is
//
//	min + (max - min) * occupied / capacity
//
// per second, recomputed on every entry and exit. A session accrues fees at
// the price in force when it is refreshed or settled.
//
// All monetary calculations use integer arithmetic. The Money type represents
// amounts in the smallest currency unit (cents for USD).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	lot_01h2xcejqtf2nbrexx3vqjhp41    // Lot ID
//	psess_01h2xcejqtf2nbrexx3vqjhp41  // Session ID
//	rcpt_01h455vb4pex5vsknk084sn02q   // Receipt ID
package parking
