package storage

import (
	"database/sql"
)

// writeJob is one unit of serialized mutation: fn runs inside a single
// transaction and its error (if any) is returned to the caller.
type writeJob struct {
	fn   func(*sql.Tx) error
	done chan error
}

// writer funnels all mutating statements for one database through a single
// goroutine, per spec.md §5 ("all database writes are funneled through a
// single writer task to preserve transaction ordering") and §9's preference
// for message passing over fine-grained locking.
type writer struct {
	db   *sql.DB
	jobs chan writeJob
	stop chan struct{}
}

func newWriter(db *sql.DB) *writer {
	w := &writer{db: db, jobs: make(chan writeJob), stop: make(chan struct{})}
	go w.run()
	return w
}

func (w *writer) run() {
	for {
		select {
		case job := <-w.jobs:
			job.done <- w.execTx(job.fn)
		case <-w.stop:
			return
		}
	}
}

func (w *writer) execTx(fn func(*sql.Tx) error) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Do submits fn to run inside a single transaction on the writer goroutine
// and blocks until it completes. Callers from indexer parse-worker
// goroutines may call this concurrently; submissions are serialized in
// arrival order, giving the issue-order guarantee of spec.md §5.
func (w *writer) Do(fn func(*sql.Tx) error) error {
	job := writeJob{fn: fn, done: make(chan error, 1)}
	w.jobs <- job
	return <-job.done
}

// Close signals the writer goroutine to stop. A job run() has already
// received finishes first, since run() executes one job at a time. jobs is
// unbuffered, so nothing is queued: a Do call whose job run() has not
// received by the time it returns blocks forever.
func (w *writer) Close() {
	close(w.stop)
}
