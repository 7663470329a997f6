// Package fragworker downloads individual numbered fragments (§4.5): it
// pulls a sequence number off a work channel, fetches it from the current
// download URL, and hands the bytes back for writing, retrying through
// 403s (expired URL), 404s, empty bodies, and transient errors the same
// way the teacher's download_frags loop does.
package fragworker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rivergate-tools/ytlive/internal/session"
	"github.com/rivergate-tools/ytlive/internal/ytlog"
)

// FragMaxTries bounds the single-fragment retry loop (HTTP errors and
// transient failures) before falling back to a full fragment re-attempt.
const FragMaxTries = 10

// BufSize is the chunk size used when streaming a fragment to disk.
const BufSize = 8192

// SeqRequest is one unit of work: download sequence number Seq, with MaxSeq
// (-1 if unknown) naming the highest sequence number observed so far.
type SeqRequest struct {
	Seq    int
	MaxSeq int
}

// Fragment is a downloaded fragment ready to be written to the output
// file, tagged with the X-Head-Seqnum the server reported at fetch time.
type Fragment struct {
	Seq        int
	Path       string
	HeadSeqnum int
}

// RefreshFunc re-resolves metadata and refreshes this kind's download URL.
// It returns the (possibly unchanged) URL and whether the broadcast is
// still live. Supplied by internal/coordinator, which owns quality
// reselection and session mutation.
type RefreshFunc func(ctx context.Context) (url string, live bool)

// Worker downloads fragments for one media kind using one goroutine.
type Worker struct {
	Kind       session.Kind
	State      *session.State
	HTTPClient *http.Client
	Refresh    RefreshFunc
	BasePath   string
	Name       string
}

// Run pulls SeqRequests from seqCh and pushes completed Fragments to
// fragCh until the session stops, the stream ends, or this worker starves
// and self-terminates (the "hot restart" design: the coordinator respawns
// workers when the backlog grows, so a starved worker closing itself is
// not a leak).
func (w *Worker) Run(ctx context.Context, seqCh <-chan SeqRequest, fragCh chan<- Fragment, onExit func()) {
	defer onExit()

	url := w.State.GetDownloadURL(w.Kind)
	fragTries := 0

	for {
		if w.State.IsStopping() {
			return
		}

		var req SeqRequest
		select {
		case r, ok := <-seqCh:
			if !ok {
				return
			}
			req = r
			fragTries = 0
		case <-time.After(w.State.TargetDuration()):
			if w.State.IsStopping() {
				return
			}
			fragTries++
			if fragTries < FragMaxTries {
				continue
			}

			if w.State.GetActiveJobCount(w.Kind) > 1 {
				ytlog.Debug("%s: starved for fragment numbers with multiple workers active; closing this worker", w.Name)
				return
			}

			if w.State.IsLive() {
				if newURL, live := w.Refresh(ctx); live {
					url = newURL
				}
			}

			if !w.State.IsLive() {
				ytlog.Debug("%s: starved for fragment numbers and stream is offline", w.Name)
				return
			}

			ytlog.Debug("%s: could not get a new fragment after %d tries while the only active worker", w.Name, FragMaxTries)
			fragTries = 0
			continue
		case <-ctx.Done():
			return
		}

		if req.MaxSeq > -1 && !w.State.IsLive() && req.Seq >= req.MaxSeq {
			ytlog.Debug("%s: stream finished and highest sequence reached", w.Name)
			return
		}

		frag, ok := w.downloadOne(ctx, req, &url)
		if !ok {
			return
		}
		if frag != nil {
			select {
			case fragCh <- *frag:
			case <-ctx.Done():
				return
			}
		}
	}
}

// downloadOne runs the inner retry loop for a single sequence number. A nil
// Fragment with ok=true means the fragment was skipped (stream ended
// exactly at this boundary); ok=false means this worker should exit.
func (w *Worker) downloadOne(ctx context.Context, req SeqRequest, url *string) (*Fragment, bool) {
	tries := 0
	fullRetries := 3
	is403 := false

	fname := fmt.Sprintf("%s.frag%d.ts", w.BasePath, req.Seq)

	for tries < FragMaxTries {
		if w.State.IsStopping() {
			os.Remove(fname)
			return nil, false
		}

		headSeqnum, bytesWritten, err := w.fetchFragment(ctx, fmt.Sprintf(*url, req.Seq), fname)
		switch {
		case err == nil && bytesWritten == 0:
			time.Sleep(w.State.TargetDuration())
			tries++

		case err == nil:
			return &Fragment{Seq: req.Seq, Path: fname, HeadSeqnum: headSeqnum}, true

		case isHTTPStatus(err, http.StatusForbidden):
			ytlog.Debug("%s: HTTP 403 for fragment %d, URL likely expired", w.Name, req.Seq)
			is403 = true
			current := w.State.GetDownloadURL(w.Kind)
			if current != *url {
				*url = current
			} else if newURL, live := w.Refresh(ctx); live {
				*url = newURL
			}
			tries++

		case isHTTPStatus(err, http.StatusNotFound):
			if req.MaxSeq > -1 && !w.State.IsLive() && req.Seq >= req.MaxSeq-2 {
				ytlog.Debug("%s: stream ended and fragment near the end was never created", w.Name)
				os.Remove(fname)
				return nil, true
			}
			tries++

		default:
			ytlog.Debug("%s: error on fragment %d: %v", w.Name, req.Seq, err)
			if req.MaxSeq > -1 && !w.State.IsLive() && req.Seq >= req.MaxSeq-2 {
				os.Remove(fname)
				return nil, true
			}
			tries++
		}

		if tries > 0 && tries < FragMaxTries {
			time.Sleep(2 * time.Second)
		}

		if tries >= FragMaxTries {
			fullRetries--
			os.Remove(fname)
			ytlog.Debug("%s: fragment %d: %d/%d retries", w.Name, req.Seq, tries, FragMaxTries)

			if w.State.IsLive() {
				w.Refresh(ctx)
			}

			switch {
			case !w.State.IsLive() && w.State.IsUnavailable() && is403:
				ytlog.Warn("%s: download link likely expired and stream is privated; cannot continue", w.Name)
				return nil, false
			case req.MaxSeq > -1 && req.Seq < req.MaxSeq-2 && fullRetries > 0:
				ytlog.Debug("%s: more than two fragments behind the known max, retrying %d more time(s)", w.Name, fullRetries)
				tries = 0
			case w.State.IsLive():
				ytlog.Debug("%s: fragment %d: stream still live, continuing", w.Name, req.Seq)
				tries = 0
			default:
				return nil, false
			}
		}
	}

	return nil, true
}

// httpStatusError carries the status code of a non-2xx fragment response so
// downloadOne can branch on 403/404 without string matching.
type httpStatusError struct {
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return "fragment request failed with status " + strconv.Itoa(e.StatusCode)
}

func isHTTPStatus(err error, code int) bool {
	se, ok := err.(*httpStatusError)
	return ok && se.StatusCode == code
}

// fetchFragment performs one fragment GET and streams the body to fname,
// returning the server's X-Head-Seqnum (-1 if absent) and the byte count
// written.
func (w *Worker) fetchFragment(ctx context.Context, url, fname string) (int, int64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, w.State.TargetDuration()*2)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return -1, 0, err
	}

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return -1, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return -1, 0, &httpStatusError{StatusCode: resp.StatusCode}
	}

	headSeqnum := -1
	if h := resp.Header.Get("X-Head-Seqnum"); h != "" {
		if n, err := strconv.Atoi(h); err == nil {
			headSeqnum = n
		}
	}

	f, err := os.Create(fname)
	if err != nil {
		return headSeqnum, 0, err
	}
	defer f.Close()

	buf := make([]byte, BufSize)
	n, err := io.CopyBuffer(f, resp.Body, buf)
	return headSeqnum, n, err
}
