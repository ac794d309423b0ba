// Package core provides the business logic for student results.
//
// The package is independent of any transport or storage technology. Web
// handlers, CLI tools and tests drive it through [Service]; persistence is
// supplied by any implementation of [Store].
//
// # Results
//
// A [Result] records one student's score in one course for one semester. Its
// letter grade is always derived from the score by [Result.DeriveGrade]; every
// mutation path (create, update, import) calls it, and callers can never set
// the grade directly. At most one result exists per (student, course, semester).
//
// # Batch Import
//
// Imports are best-effort. [Pipeline.ImportBatch] validates every row on its
// own and never lets one bad row stop the rest:
//
//  1. Rows are numbered from 1 as they are dequeued, before validation.
//  2. Field checks run in a fixed order; the first failure is the row's only reason.
//  3. Student and course references are resolved through a [Directory],
//     concurrently across rows.
//  4. Valid rows become candidate results; invalid rows become [ImportRowError]s.
//
// Only a structurally unreadable input aborts the batch ([ErrMalformedInput]).
// [Service.ImportCSV] then inserts the candidates. Candidates that collide with
// an existing (student, course, semester) triple are reported as skipped, not as
// row errors.
//
// # Error Handling
//
// Failure kinds are sentinel errors matched with errors.Is: [ErrNotFound],
// [ErrDuplicateResult], [ErrInvalidInput], [ErrMalformedInput] and
// [ErrTooManyImports]. [MapError] turns any error into a user-facing message
// with a support code:
//
//   - RES001-RES006: lookups, duplicates and the acting user
//   - VAL001-VAL003: field validation
//   - FILE001-FILE004: import file problems
//   - IMP001-IMP003: import capacity and cancellation
//   - DB001-DB003: database failures
//
// # Activity
//
// Mutations append entries to a recent-activity feed. Entries older than the
// configured retention are purged by [Service.StartActivityPurge].
package core
