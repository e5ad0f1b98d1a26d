// Package tasklock provides LockTask, a task that acquires the ownership token of
// a lock file without ever blocking the engine worker.
//
// A LockTask starts in Attempting. If another owner holds the token the task
// registers a wakeup and suspends, it is resumed when the token is released and
// tries again. Once it owns the token it moves to Done and finishes. The caller
// then does its work and calls Unlock.
package tasklock
