//go:build !linux

package distributed

// EnsureNoCoreRestriction is a no-op where affinity masks are not exposed.
func EnsureNoCoreRestriction() error { return nil }
