// Package storage defines the object-listing service consumed by the study
// activity tools.
//
// The canonical ObjectStore interface lives here; implementation packages
// provide backends that can be swapped without touching calling code. The
// bundled MemoryStore serves tests and local mode. Callers should depend on
// the interface rather than concrete types so a cloud-backed store can be
// substituted in production.
package storage
