package progress

import "sync/atomic"

// PercentageIdle is published when no transfer is in progress or the
// current transfer was aborted.
const PercentageIdle = -1

// Tracker is the shared state between a blocking download/extract
// operation and whichever goroutine is observing it. A poller reads the
// percentage and may request an abort at any time; the operation picks
// the request up at its next checkpoint. All fields are individually
// atomic, none of the accessors block.
type Tracker struct {
	percentage    atomic.Int32
	abortDownload atomic.Bool
	abortUnzip    atomic.Bool
}

// NewTracker returns a Tracker in the idle state.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.percentage.Store(PercentageIdle)

	return t
}

// Percentage returns the current completion percentage, or
// PercentageIdle when nothing is in flight.
func (t *Tracker) Percentage() int {
	return int(t.percentage.Load())
}

// SetPercentage publishes a new completion percentage.
func (t *Tracker) SetPercentage(p int) {
	t.percentage.Store(int32(p))
}

// Reset marks the tracker idle.
func (t *Tracker) Reset() {
	t.percentage.Store(PercentageIdle)
}

// RequestAbortDownload asks the in-flight download to stop. Requesting
// an abort while nothing is in flight is a no-op; the flag is cleared
// when the next download starts.
func (t *Tracker) RequestAbortDownload() {
	t.abortDownload.Store(true)
}

// RequestAbortUnzip asks the in-flight extraction to stop.
func (t *Tracker) RequestAbortUnzip() {
	t.abortUnzip.Store(true)
}

// AbortDownloadRequested reports whether a download abort was requested
// and clears the flag, completing the abort handshake.
func (t *Tracker) AbortDownloadRequested() bool {
	return t.abortDownload.CompareAndSwap(true, false)
}

// AbortUnzipRequested reports whether an extraction abort was requested
// and clears the flag.
func (t *Tracker) AbortUnzipRequested() bool {
	return t.abortUnzip.CompareAndSwap(true, false)
}

// ClearAbortDownload drops any stale abort request. Called when a new
// download starts so a request made between operations cannot cancel it.
func (t *Tracker) ClearAbortDownload() {
	t.abortDownload.Store(false)
}

// ClearAbortUnzip drops any stale extraction abort request.
func (t *Tracker) ClearAbortUnzip() {
	t.abortUnzip.Store(false)
}
