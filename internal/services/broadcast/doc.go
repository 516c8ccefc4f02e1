// Package broadcast delivers one admin message to every subscribed chat.
//
// Dispatcher
//
// A Dispatcher walks a snapshot of recipient ids in order. Sends are paced by a
// token bucket and run on a bounded set of workers. Every recipient ends with
// exactly one Outcome: delivered, unreachable (the store is told to
// unsubscribe it before that worker moves on), transient (left subscribed, not
// retried) or skipped (never attempted because the run was cancelled).
//
// Service
//
// Service owns the single in-flight lock, captures the snapshot from the
// subscriber directory, runs the Dispatcher on its own goroutine and keeps a
// bounded in-memory registry of job statuses. A second Submit while a job runs
// fails with ErrBusy. With the redis lock the CLI and the bot share that limit.
package broadcast
