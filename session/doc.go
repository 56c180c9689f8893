// Package session houses concrete implementations of core.SessionStore. The
// interface itself (and the Session struct) live in the core package to
// centralize domain contracts; keeping only implementations here prevents
// higher level packages (agents, server) from depending on concrete storage.
//
// Two backends are provided: InMemoryStore for tests and ephemeral servers,
// and SQLiteStore for durable single-node deployments. Additional backends
// (Redis, Postgres) can be added without changing any calling code, only the
// wiring layer decides which implementation to instantiate.
package session
