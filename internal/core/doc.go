// Package core provides the business logic for module roster imports.
//
// It has no transport dependencies; the web handlers, the rosterctl CLI and
// the tests all drive it through [Service].
//
// # Import pipeline
//
// A roster arrives as a decoded [Table]. [Service.ImportRoster] then:
//
//  1. Resolves headers onto canonical fields with [ResolveColumns]. Missing
//     required fields abort with [*MissingColumnsError].
//  2. Takes a slot from the [ImportLimiter].
//  3. Reads the module keys for the academic year and the username map
//     concurrently.
//  4. Folds every row through [Reconcile]. Each row is accepted, warned
//     (already exists) or errored (invalid). Lead names not yet known are
//     given a deterministic email address and a placeholder credential.
//  5. Writes users, then modules, through the [BulkWriter] with [Commit].
//     Individual document failures become report errors.
//  6. Tells the [Notifier] about newly stored leads.
//
// The resulting [ImportReport] always carries full stats. Its outcome is
// success only when no errors were recorded.
//
// # Academic years
//
// Modules are unique per (code, academic year). A year runs September to
// August and is named after the calendar year it starts in; see [AcademicYear].
//
// # Error codes
//
// [MapError] turns technical errors into coded messages (IMP, FILE, DB, REQ
// and RATE families) suitable for showing to administrators.
package core
