// Package recovery coordinates handling of unhandled errors: it
// classifies them, runs registered recovery actions, retries the failed
// operation with exponential backoff, keeps a bounded error history and
// decides when an error type should alert.
//
// The Coordinator is the entry point. Route handlers and dependency
// wrappers route caught errors through Coordinator.HandleError; the
// Monitor runs the periodic maintenance sweep over the history.
package recovery
