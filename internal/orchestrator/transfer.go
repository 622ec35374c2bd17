package orchestrator

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/warrengalyen/gateway/internal/gwerr"
)

// chunkSize is the streaming transfer chunk, per spec.md §4.7 step 3.
const chunkSize = 65536

// ErrAborted is returned by runTransferLoop when the cooperative abort
// flag was observed between chunks.
var ErrAborted = gwerr.New(gwerr.UnsupportedFeature, "transfer aborted")

// ProgressFunc receives a fraction already clamped to [0.0, 1.0].
type ProgressFunc func(fraction float64)

// TransferTask is the ephemeral value describing one in-flight
// transfer, per spec.md §3 ("TransferTask"). Total is -1 when unknown
// (some FTP listings never report a size).
type TransferTask struct {
	Name        string
	Total       int64
	Transferred int64
	aborted     atomic.Bool
	Progress    ProgressFunc
	started     time.Time
}

// RequestAbort sets the cooperative abort flag. The in-flight chunk
// always completes; the loop only stops issuing new reads once it next
// checks the flag, per spec.md §4.7's "Abort" paragraph.
func (t *TransferTask) RequestAbort() { t.aborted.Store(true) }

// Aborted reports whether RequestAbort was called.
func (t *TransferTask) Aborted() bool { return t.aborted.Load() }

// ClampProgress implements the "Progress clamping" testable property
// from spec.md §8: for any (transferred, total) pair, including
// total == 0, transferred > total, or total < 0 (illegal inputs), the
// result is in [0.0, 1.0] and this function never panics.
func ClampProgress(transferred, total int64) float64 {
	if total <= 0 {
		if transferred <= 0 {
			return 0
		}
		return 1
	}
	f := float64(transferred) / float64(total)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// runTransferLoop streams src into dst in chunkSize reads, updating
// task.Transferred and invoking task.Progress after each chunk, per
// spec.md §4.7 steps 3-3. pollAbort is called once per chunk boundary;
// a caller with no real input source (tests, non-interactive transfers)
// may pass nil.
func runTransferLoop(src io.Reader, dst io.Writer, task *TransferTask, pollAbort func() bool) error {
	task.started = time.Now()
	buf := make([]byte, chunkSize)
	for {
		if task.Aborted() || (pollAbort != nil && pollAbort()) {
			task.RequestAbort()
			return ErrAborted
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return gwerr.Wrap(werr, gwerr.IoErr, "writing transfer chunk")
			}
			task.Transferred += int64(n)
			if task.Progress != nil {
				task.Progress(ClampProgress(task.Transferred, task.Total))
			}
		}
		if rerr == io.EOF {
			if task.Progress != nil {
				task.Progress(ClampProgress(task.Transferred, task.Total))
			}
			return nil
		}
		if rerr != nil {
			return gwerr.Wrap(rerr, gwerr.IoErr, "reading transfer chunk")
		}
	}
}

// rate returns bytes/second since the task started, for the
// bytes-per-second log line spec.md §4.7 step 4 requires.
func (t *TransferTask) rate() float64 {
	elapsed := time.Since(t.started).Seconds()
	if elapsed <= 0 {
		return float64(t.Transferred)
	}
	return float64(t.Transferred) / elapsed
}
