// Package storage provides interfaces and types for OAuth credential persistence.
//
// The storage package defines the core storage interfaces used throughout authd:
//   - ClientStore: Manages registered OAuth clients
//   - UserStore: Manages resource owner accounts
//   - CodeStore: Manages single-use authorization codes
//   - TokenStore: Tracks issued access and refresh tokens
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/redis: Redis-backed distributed storage for production
package storage
