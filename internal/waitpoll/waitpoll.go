// Package waitpoll implements the pre-broadcast wait loop (§4.2): deciding
// whether to wait for a scheduled stream at all, then sleeping to the
// scheduled start time, then falling back to a fixed recheck interval once
// that time has passed without the broadcast going live.
package waitpoll

import (
	"context"
	"fmt"
	"time"

	"github.com/rivergate-tools/ytlive/internal/session"
	"github.com/rivergate-tools/ytlive/internal/ytlog"
	"github.com/rivergate-tools/ytlive/internal/ytmeta"
)

// AskFunc prompts the user whether to wait for a scheduled-but-not-yet-live
// broadcast. It is only consulted once, on the first offline response, and
// only when the session's WaitMode is WaitAsk.
type AskFunc func(url string) bool

// ErrUserDeclinedWait is returned when AskFunc (or WaitNo) determines the
// caller should not wait for the stream to start.
var ErrUserDeclinedWait = fmt.Errorf("user declined to wait for stream")

// ErrNotLivestream is returned when the resolved video is not livestream
// content at all.
var ErrNotLivestream = fmt.Errorf("video is not a livestream")

// Poller drives the wait loop against a ytmeta.Client.
type Poller struct {
	Client ytmeta.Client
	Ask    AskFunc

	// Sleep is overridable in tests; defaults to time.Sleep.
	Sleep func(time.Duration)
	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

// New builds a Poller with production sleep/clock functions.
func New(client ytmeta.Client, ask AskFunc) *Poller {
	return &Poller{
		Client: client,
		Ask:    ask,
		Sleep:  time.Sleep,
		Now:    time.Now,
	}
}

// WaitForPlayable blocks (cooperatively, checking st.IsStopping between
// sleeps) until the broadcast is playable, the caller declines to wait, or
// a fatal classification is reached. On success it returns the final
// VerdictOK RefreshResult with PlayerResponse/URLs populated.
func (p *Poller) WaitForPlayable(ctx context.Context, st *session.State) (*ytmeta.RefreshResult, error) {
	firstWait := true
	secsLate := 0

	for {
		if st.IsStopping() {
			return nil, context.Canceled
		}

		result, err := p.Client.ResolveOnce(ctx, st)
		if err != nil {
			return nil, err
		}

		switch result.Verdict {
		case ytmeta.VerdictOK:
			if secsLate > 0 {
				ytlog.Info("")
			}
			return result, nil

		case ytmeta.VerdictFatal:
			return nil, fmt.Errorf("%s", result.Reason)

		case ytmeta.VerdictTaperingOff:
			return nil, fmt.Errorf("stream became unavailable while waiting")

		case ytmeta.VerdictOfflineFuture, ytmeta.VerdictOfflineLate:
			if st.Wait == session.WaitNo {
				ytlog.Info("stream appears to be a future scheduled stream, and you opted not to wait")
				return nil, ErrUserDeclinedWait
			}

			if firstWait && st.Wait == session.WaitAsk {
				if p.Ask == nil || !p.Ask(st.URL) {
					return nil, ErrUserDeclinedWait
				}
			}

			if st.RetrySecs > 0 {
				wait := clampPollDelay(st.RetrySecs, result.PollDelay)
				if firstWait {
					ytlog.Info("waiting for stream, retrying every %s...", wait)
				}
				firstWait = false
				p.sleep(wait)
				continue
			}

			if result.Verdict == ytmeta.VerdictOfflineFuture {
				if err := p.sleepUntilScheduled(st, result.ScheduledStart, &firstWait, &secsLate); err != nil {
					return nil, err
				}
				continue
			}

			recheck := clampPollDelay(ytmeta.RecheckInterval, result.PollDelay)
			if firstWait {
				ytlog.Info("stream should have started, checking back every %s", recheck)
				firstWait = false
			}

			p.sleep(recheck)
			secsLate += int(recheck.Seconds())
			ytlog.Status("stream is %d seconds late...", secsLate)
			continue

		default:
			return nil, fmt.Errorf("unexpected verdict %d while waiting", result.Verdict)
		}
	}
}

// sleepUntilScheduled sleeps to the broadcast's scheduled start time,
// re-sleeping any remainder if it wakes early (a "rogue sleep interrupt",
// in the teacher's words).
func (p *Poller) sleepUntilScheduled(st *session.State, sched time.Time, firstWait *bool, secsLate *int) error {
	remaining := sched.Sub(p.Now())
	if remaining <= 0 {
		return nil
	}

	if !*firstWait && *secsLate > 0 {
		ytlog.Info("")
	}
	ytlog.Info("stream starts in %s. waiting for this time to elapse...", remaining.Round(time.Second))
	*firstWait = false
	*secsLate = 0

	for remaining > 0 {
		if st.IsStopping() {
			return context.Canceled
		}
		p.sleep(remaining)
		remaining = sched.Sub(p.Now())
		if remaining > 0 {
			ytlog.Debug("woke up %s early. continuing sleep...", remaining.Round(time.Second))
		}
	}
	return nil
}

// clampPollDelay caps an interval to a server-supplied pollDelayMs hint:
// YouTube sometimes asks for tighter polling than our own default/configured
// interval, and the hint should only ever shorten the wait, never lengthen
// it.
func clampPollDelay(interval, pollDelay time.Duration) time.Duration {
	if pollDelay > 0 && pollDelay < interval {
		return pollDelay
	}
	return interval
}

func (p *Poller) sleep(d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	time.Sleep(d)
}
