// Package study assembles the RefreshApp agent graph: a deterministic
// router delegating each turn to either the login agent or the activity
// agent, with question generation wrapped as a callable tool.
//
// Session state drives every routing decision. The router reads
// login_status through its check tool and never answers the user itself;
// the login agent walks a fixed identification protocol and writes the
// login outcome back as state deltas; the activity agent dispatches over a
// three-option menu backed by the storage and corpus services. Control
// returns to the router between turns because the HTTP front door rotates
// session identifiers, not because agents hand control back explicitly.
package study
