// Package testutil provides testing utilities, test fixtures, and assertion
// helpers for authd. It includes helpers for creating test data and mock time
// providers for deterministic testing.
package testutil
