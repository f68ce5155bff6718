// Package lazarus implements the core of a citizen emergency reporting
// system: a polymorphic identity layer over three account collections and
// the incident lifecycle with its permission matrix and strike ledger.
//
// Identities:
//   - Citizens, entities and admins live in their own tables. Identity is a
//     tagged union over the three records and IdentityRef is the (id, role)
//     pair carried by session tokens.
//   - Emails are unique across all three collections. Every registration path
//     goes through Identities.EmailAvailableTx.
//   - AuthResolver resolves emails in ResolutionOrder and validates
//     credentials with a constant cost bcrypt comparison.
//
// Sessions:
//   - TokenService signs HS256 tokens and re-resolves the identity on every
//     Verify, so disabling an account revokes its sessions immediately.
//
// Incidents:
//   - IncidentLifecycle gates updates through IncidentPolicy (casbin) and the
//     IncidentStateMachine. Status writes are a compare-and-set on the
//     previous status.
//   - Rejecting an incident records a strike against its reporter in the same
//     transaction. The third strike disables the account.
//   - Archiver marks incidents older than 48h. ArchiveScheduler runs it on a
//     cron schedule.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter for logins, registrations,
//     transitions, strikes, password resets and archival. Sinks run
//     best-effort (errors are logged).
//
// Notifications and broadcasts are best-effort as well, with one exception:
// a failed password reset delivery fails the request.
package lazarus
