package qbproxy

import "context"

// queueEntry is a request waiting for the bootstrap call to finish
type queueEntry struct {
	ctx  context.Context
	call *call
}

// requestQueue is a FIFO of entries. It is not safe for concurrent use; the
// dispatch state lock guards it.
type requestQueue struct {
	entries []queueEntry
}

func (q *requestQueue) push(e queueEntry) {
	q.entries = append(q.entries, e)
}

// pushFront puts back an entry that was popped but could not be issued
func (q *requestQueue) pushFront(e queueEntry) {
	q.entries = append([]queueEntry{e}, q.entries...)
}

func (q *requestQueue) pop() (queueEntry, bool) {
	if len(q.entries) == 0 {
		return queueEntry{}, false
	}
	e := q.entries[0]
	q.entries[0] = queueEntry{}
	q.entries = q.entries[1:]
	return e, true
}

func (q *requestQueue) len() int {
	return len(q.entries)
}
