package remote

import (
	"context"
	"io"
)

// LogMirrorWriter wraps an underlying io.Writer (normally a process
// logger's own writer) and best-effort mirrors every line written to it to
// the remote store's terminal_logs collection, tagged with botID
// (SPEC_FULL.md §5's log-mirroring feature). Every write to a bot's own
// *log.Logger — the Cycle Engine's and Strategy Loop's Warn/Error-level
// calls, since neither package logs anything but error conditions — rides
// along for free once the Supervisor threads this writer in. A remote push
// runs detached from the call and its failure is dropped silently; it never
// slows down or breaks the caller's own logging.
type LogMirrorWriter struct {
	underlying io.Writer
	client     *Client
	botID      string
}

// NewLogMirrorWriter builds a LogMirrorWriter. client may be nil (e.g. in
// tests, or for accounts without a remote store configured), in which case
// writes pass straight through with no mirroring attempted.
func NewLogMirrorWriter(underlying io.Writer, client *Client, botID string) *LogMirrorWriter {
	return &LogMirrorWriter{underlying: underlying, client: client, botID: botID}
}

func (w *LogMirrorWriter) Write(p []byte) (int, error) {
	n, err := w.underlying.Write(p)
	if w.client != nil {
		line := string(p)
		go func() {
			_ = w.client.PushLog(context.Background(), w.botID, "error", line)
		}()
	}
	return n, err
}
