// Package core provides the add-on validation job service.
//
// It holds the server-side domain logic independent of HTTP: the web
// handlers and tests drive it directly.
//
// # Jobs
//
// [Service.Save] accepts the addon part of an upload. Packages from the
// in-page upload path arrive as a base64 data URI and are decoded first.
// The package is written to a temporary file and a job is registered under
// a new task ID:
//
//  1. queued: waiting for one of the slots of the [JobLimiter]
//  2. working: [Inspect] is reading the archive
//  3. done: the [Result] is stored and the temp file removed
//
// Clients follow a job with [Service.Poll] and fetch the outcome with
// [Service.Result]. Finished jobs are purged after the result TTL by
// [Service.StartCleanupScheduler].
//
// # Storage
//
// Jobs live in a [JobStore] (an in-memory database in production). A
// [History] can additionally record every submission and outcome in a
// durable database; it is optional.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each category has a code prefix for support reference:
//
//   - FILE: size, encoding, and missing-file problems
//   - ADD: the file is not an acceptable add-on package
//   - UPL: the validator is busy or the request was cancelled
//   - TSK: unknown task or unfinished result
package core
