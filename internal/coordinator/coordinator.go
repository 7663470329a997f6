// Package coordinator drives one media kind's download from start to
// finish (§4.4): seeding a pool of fragment workers, dispatching sequence
// numbers as fast as the backlog allows, writing completed fragments to
// the output file in order, and periodically refreshing metadata so
// download URLs don't expire mid-broadcast.
package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rivergate-tools/ytlive/internal/fragworker"
	"github.com/rivergate-tools/ytlive/internal/progress"
	"github.com/rivergate-tools/ytlive/internal/quality"
	"github.com/rivergate-tools/ytlive/internal/session"
	"github.com/rivergate-tools/ytlive/internal/ytlog"
	"github.com/rivergate-tools/ytlive/internal/ytmeta"
)

// RefreshInterval is how often the coordinator re-resolves metadata purely
// to keep download URLs from expiring on a long-running broadcast (the
// teacher's hourly refresh).
const RefreshInterval = time.Hour

// RespawnBacklogThreshold is how far the highest known sequence number
// must be ahead of the dispatch cursor before the coordinator starts more
// workers, assuming some died prematurely (slow disk writes, etc).
const RespawnBacklogThreshold = 100

// WriteMaxRetries bounds how many times the writer pass retries a single
// fragment write before giving up on the whole download.
const WriteMaxRetries = 10

// Options tunes behaviour that the original tool hard-coded or varied by
// media kind.
type Options struct {
	// StripSidxAlways applies removeSidx to every fragment, audio and
	// video alike, regardless of codec, resolving the historical VP9 ambiguity in
	// favour of always stripping: VP9 fragments carry the same leading
	// sidx box and leaving it in confuses downstream muxers just as much
	// as it does for H264.
	StripSidxAlways bool
}

// DefaultOptions matches the resolved behaviour described above.
var DefaultOptions = Options{StripSidxAlways: true}

// Coordinator owns one media kind's download for the lifetime of a
// session.
type Coordinator struct {
	Kind       session.Kind
	State      *session.State
	HTTPClient *http.Client
	Resolver   ytmeta.Client
	Options    Options

	// Progress receives one update per fragment written.
	Progress chan<- progress.Update

	mu     sync.Mutex
	chosen quality.Selection
	lastPR *ytmeta.PlayerResponse
}

// New builds a Coordinator for kind, remembering the already-resolved
// quality selection (irrelevant for the audio kind, whose itag is fixed).
func New(kind session.Kind, st *session.State, httpClient *http.Client, resolver ytmeta.Client, chosen quality.Selection, prog chan<- progress.Update) *Coordinator {
	return &Coordinator{
		Kind:       kind,
		State:      st,
		HTTPClient: httpClient,
		Resolver:   resolver,
		Options:    DefaultOptions,
		Progress:   prog,
		chosen:     chosen,
	}
}

// Run downloads the stream to outPath until it ends, is stopped, or fails
// unrecoverably.
func (c *Coordinator) Run(ctx context.Context, outPath string) error {
	out, err := os.OpenFile(outPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening output file %s: %w", outPath, err)
	}
	defer out.Close()

	seqCh := make(chan fragworker.SeqRequest, c.State.ThreadCount*2+8)
	fragCh := make(chan fragworker.Fragment, c.State.ThreadCount*2+8)

	var wg sync.WaitGroup
	curSeq := 0
	activeDispatched := 0

	spawn := func(tnum int) {
		w := &fragworker.Worker{
			Kind:       c.Kind,
			State:      c.State,
			HTTPClient: c.HTTPClient,
			Refresh:    c.refreshURL,
			BasePath:   c.State.GetBaseFilePath(c.Kind),
			Name:       fmt.Sprintf("%s%d", c.Kind, tnum),
		}
		c.State.IncrementJobs(c.Kind)
		wg.Add(1)
		go w.Run(ctx, seqCh, fragCh, func() {
			c.State.DecrementJobs(c.Kind)
			wg.Done()
		})
	}

	tnum := 0
	for c.State.GetActiveJobCount(c.Kind) < c.State.ThreadCount {
		spawn(tnum)
		tnum++
		seqCh <- fragworker.SeqRequest{Seq: curSeq, MaxSeq: -1}
		curSeq++
		activeDispatched++
	}

	pending := make(map[int]fragworker.Fragment)
	curFrag := 0
	maxSeq := -1
	writeTries := WriteMaxRetries
	lastRefresh := time.Now()

	for {
		if c.State.GetActiveJobCount(c.Kind) == 0 {
			// Drain whatever already arrived before declaring done.
			c.drainFragments(fragCh, pending, &activeDispatched, &maxSeq)
			c.writePending(out, pending, &curFrag, &writeTries, &activeDispatched)
			break
		}

		select {
		case frag := <-fragCh:
			activeDispatched--
			pending[frag.Seq] = frag
			if frag.HeadSeqnum > maxSeq {
				maxSeq = frag.HeadSeqnum
			}

			if maxSeq >= 0 {
				if curSeq <= maxSeq+1 {
					seqCh <- fragworker.SeqRequest{Seq: curSeq, MaxSeq: maxSeq}
					curSeq++
					activeDispatched++
				}
			} else {
				seqCh <- fragworker.SeqRequest{Seq: curSeq, MaxSeq: maxSeq}
				curSeq++
				activeDispatched++
			}
			continue

		case <-time.After(100 * time.Millisecond):
			if len(pending) == 0 {
				if activeDispatched <= 0 {
					ytlog.Debug("%s-download: no active downloads and no data to write at fragment %d", c.Kind, curFrag)
					for activeDispatched < c.State.GetActiveJobCount(c.Kind) {
						seqCh <- fragworker.SeqRequest{Seq: curSeq, MaxSeq: maxSeq}
						curSeq++
						activeDispatched++
					}
				}
				continue
			}
		}

		if !c.writePending(out, pending, &curFrag, &writeTries, &activeDispatched) {
			c.State.Stop()
			close(seqCh)
			wg.Wait()
			return fmt.Errorf("%s: exceeded write retries at fragment %d", c.Kind, curFrag)
		}

		if maxSeq-curSeq > RespawnBacklogThreshold && c.State.GetActiveJobCount(c.Kind) < c.State.ThreadCount {
			ytlog.Debug("%s-download: more than %d fragments behind, starting more workers", c.Kind, RespawnBacklogThreshold)
			for c.State.GetActiveJobCount(c.Kind) < c.State.ThreadCount {
				spawn(tnum)
				tnum++
				seqCh <- fragworker.SeqRequest{Seq: curSeq, MaxSeq: maxSeq}
				curSeq++
				activeDispatched++
			}
		}

		if !c.State.IsUnavailable() && time.Since(lastRefresh) > RefreshInterval {
			c.refreshURL(ctx)
			lastRefresh = time.Now()
		}
	}

	close(seqCh)
	wg.Wait()
	return nil
}

// drainFragments empties fragCh without blocking once every worker has
// exited, so no downloaded fragment is silently discarded.
func (c *Coordinator) drainFragments(fragCh chan fragworker.Fragment, pending map[int]fragworker.Fragment, activeDispatched, maxSeq *int) {
	for {
		select {
		case frag := <-fragCh:
			pending[frag.Seq] = frag
			*activeDispatched--
			if frag.HeadSeqnum > *maxSeq {
				*maxSeq = frag.HeadSeqnum
			}
		default:
			return
		}
	}
}

// writePending writes every fragment in pending that is next in sequence,
// stripping the sidx box from fragments of either kind per Options, and returns
// false once the retry budget for a stuck write is exhausted.
func (c *Coordinator) writePending(out *os.File, pending map[int]fragworker.Fragment, curFrag *int, writeTries *int, activeDispatched *int) bool {
	for *writeTries > 0 {
		frag, ok := pending[*curFrag]
		if !ok {
			return true
		}

		data, err := os.ReadFile(frag.Path)
		if err != nil {
			*writeTries--
			ytlog.Warn("%s-download: error reading fragment %d: %v", c.Kind, frag.Seq, err)
			continue
		}

		if c.Options.StripSidxAlways {
			data = removeSidx(data)
		}

		n, err := out.Write(data)
		if err != nil {
			*writeTries--
			ytlog.Warn("%s-download: error writing fragment %d: %v", c.Kind, frag.Seq, err)
			continue
		}

		if c.Progress != nil {
			c.Progress <- progress.Update{Kind: c.Kind, Bytes: n, MaxSeq: frag.HeadSeqnum}
		}

		os.Remove(frag.Path)
		delete(pending, *curFrag)
		*curFrag++
		*writeTries = WriteMaxRetries
	}
	return false
}

// refreshURL re-resolves metadata, re-applies quality selection against
// the new URL table, and updates the session's download URL for this
// kind. It returns the (possibly unchanged) URL and whether the broadcast
// is still live; it is the RefreshFunc handed to every fragworker.Worker.
func (c *Coordinator) refreshURL(ctx context.Context) (string, bool) {
	result, err := c.Resolver.Refresh(ctx, c.State)
	if err != nil {
		ytlog.Debug("%s: refresh error: %v", c.Kind, err)
		return c.State.GetDownloadURL(c.Kind), c.State.IsLive()
	}
	if result.Verdict != ytmeta.VerdictOK {
		return c.State.GetDownloadURL(c.Kind), c.State.IsLive()
	}

	c.mu.Lock()
	c.lastPR = result.PlayerResponse
	c.mu.Unlock()

	if c.Kind == session.KindAudio {
		if u, ok := result.URLs[quality.AudioItag]; ok {
			c.State.SetDownloadURL(session.KindAudio, u)
		}
		return c.State.GetDownloadURL(c.Kind), c.State.IsLive()
	}

	if c.chosen.AudioOnly {
		return c.State.GetDownloadURL(c.Kind), c.State.IsLive()
	}
	if u, ok := result.URLs[c.chosen.Itag]; ok {
		c.State.SetDownloadURL(session.KindVideo, u)
	}
	return c.State.GetDownloadURL(c.Kind), c.State.IsLive()
}
