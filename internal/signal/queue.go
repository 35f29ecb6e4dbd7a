// Package signal turns hub print() output into discrete, awaitable events.
// A program batched onto the hub prints "DONE:<n>" after each step; the
// session's console path feeds every line here, and an orchestrator waits
// on the queue to sequence actions across independently connected devices.
package signal

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// doneTag marks a completion line in the hub's console output.
const doneTag = "DONE:"

// Signal is one parsed completion event from a hub program.
type Signal struct {
	Source     string // device the signal came from
	Sequence   int    // step index printed by the hub program
	Text       string // the raw console line
	ReceivedAt time.Time
}

// Queue is an ordered, append-only signal stream with FIFO delivery.
// Multiple concurrent Wait callers each receive a distinct signal; none is
// duplicated or lost. The queue owns its signals — consumers get copies.
type Queue struct {
	source string
	ch     chan Signal
}

// NewQueue creates a queue for signals from the named device. The buffer
// is generous because an orchestrator normally drains promptly; if it ever
// fills, the oldest unconsumed behavior is to drop the new signal loudly.
func NewQueue(source string) *Queue {
	return &Queue{
		source: source,
		ch:     make(chan Signal, 256),
	}
}

// OnNotification parses one console line. Lines matching the tagged-integer
// pattern enqueue a Signal; everything else is ordinary diagnostic output
// and is dropped without error. Wire this to Session.SetConsoleHandler.
func (q *Queue) OnNotification(text string) {
	seq, ok := parseDone(text)
	if !ok {
		return
	}
	sig := Signal{
		Source:     q.source,
		Sequence:   seq,
		Text:       text,
		ReceivedAt: time.Now(),
	}
	select {
	case q.ch <- sig:
	default:
		slog.Warn("[signal] queue full, dropping signal", "source", q.source, "sequence", seq)
	}
}

// Wait blocks until a signal arrives, the timeout elapses, or ctx is
// cancelled. A false result means no signal — a normal outcome, not an
// error (many actions produce no signal at all).
func (q *Queue) Wait(ctx context.Context, timeout time.Duration) (Signal, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sig := <-q.ch:
		return sig, true
	case <-timer.C:
		return Signal{}, false
	case <-ctx.Done():
		return Signal{}, false
	}
}

// Len returns the number of signals waiting to be consumed.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Clear drops all pending signals.
func (q *Queue) Clear() {
	for {
		select {
		case <-q.ch:
		default:
			return
		}
	}
}

// parseDone extracts the step index from a "DONE:<n>" line. The tag may be
// embedded in surrounding output; trailing whitespace is tolerated.
func parseDone(text string) (int, bool) {
	idx := strings.Index(text, doneTag)
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(text[idx+len(doneTag):])
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
