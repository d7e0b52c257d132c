// Package memory provides an in-memory implementation of the storage interfaces.
//
// The Store keeps clients, users, authorization codes, and token records in
// maps guarded by a sync.RWMutex. Authorization code consumption uses a write
// lock for an atomic check-and-set, so concurrent redemptions of the same code
// admit exactly one winner.
//
// A background goroutine sweeps expired codes and tokens every cleanup
// interval; expiry is additionally enforced at read time, so a record is never
// returned after its expiry even between sweeps. Call Stop to halt the
// goroutine on shutdown.
//
// The store is suitable for development, tests, and single-instance
// deployments. For multi-instance deployments use storage/redis.
package memory
