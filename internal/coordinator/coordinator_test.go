package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivergate-tools/ytlive/internal/fragworker"
	"github.com/rivergate-tools/ytlive/internal/progress"
	"github.com/rivergate-tools/ytlive/internal/quality"
	"github.com/rivergate-tools/ytlive/internal/session"
	"github.com/rivergate-tools/ytlive/internal/ytmeta"
)

// fakeResolver never performs a real refresh: every call reports
// VerdictStale, so Run needs no network beyond the test server.
type fakeResolver struct {
	st *session.State
}

func (f *fakeResolver) Refresh(ctx context.Context, st *session.State) (*ytmeta.RefreshResult, error) {
	return &ytmeta.RefreshResult{Verdict: ytmeta.VerdictStale}, nil
}

func (f *fakeResolver) ResolveOnce(ctx context.Context, st *session.State) (*ytmeta.RefreshResult, error) {
	return f.Refresh(ctx, st)
}

func TestCoordinator_HappyPath(t *testing.T) {
	const totalFrags = 5

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seq := r.URL.Query().Get("sq")
		if seq == "" {
			seq = "0"
		}
		n := 0
		for _, c := range seq {
			n = n*10 + int(c-'0')
		}
		if n >= totalFrags {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("X-Head-Seqnum", seq)
		if n == totalFrags-1 {
			// Last fragment; the end of the stream is signalled by the
			// progress consumer below, not by the server.
		}
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	st := session.New()
	st.ThreadCount = 1
	st.SetTargetDurationSec(1)
	st.SetLive(true)
	st.SetDownloadURL(session.KindVideo, srv.URL+"/frag?sq=%d")

	dir := t.TempDir()
	st.SetBaseFilePath(session.KindVideo, filepath.Join(dir, "out"))
	outPath := filepath.Join(dir, "video.ts")

	progCh := make(chan progress.Update, 32)
	c := New(session.KindVideo, st, srv.Client(), &fakeResolver{st: st}, quality.Selection{}, progCh)
	c.Options = Options{StripSidxAlways: false}

	// Stop the stream once enough fragments have landed, mimicking the
	// broadcast ending mid-coordinator-run.
	stopConsumer := make(chan struct{})
	go func() {
		defer close(stopConsumer)
		seen := 0
		for {
			select {
			case _, ok := <-progCh:
				if !ok {
					return
				}
				seen++
				if seen >= totalFrags {
					st.SetLive(false)
					return
				}
			case <-time.After(5 * time.Second):
				return
			}
		}
	}()
	defer func() { <-stopConsumer }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Run(ctx, outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(data), totalFrags)
}

func TestWritePending_StripsSidxForBothAudioAndVideo(t *testing.T) {
	for _, kind := range []session.Kind{session.KindAudio, session.KindVideo} {
		t.Run(string(kind), func(t *testing.T) {
			styp := box("styp", []byte("0123"))
			sidx := box("sidx", []byte("sidx-payload-data"))
			moof := box("moof", []byte("moof-payload"))
			fragData := append(append(append([]byte{}, styp...), sidx...), moof...)

			dir := t.TempDir()
			fragPath := filepath.Join(dir, "frag0.ts")
			require.NoError(t, os.WriteFile(fragPath, fragData, 0o644))

			outPath := filepath.Join(dir, "out.ts")
			out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY, 0o644)
			require.NoError(t, err)
			defer out.Close()

			c := &Coordinator{Kind: kind, Options: Options{StripSidxAlways: true}}
			pending := map[int]fragworker.Fragment{0: {Seq: 0, Path: fragPath}}
			curFrag := 0
			writeTries := WriteMaxRetries
			activeDispatched := 0
			ok := c.writePending(out, pending, &curFrag, &writeTries, &activeDispatched)
			require.True(t, ok)

			written, err := os.ReadFile(outPath)
			require.NoError(t, err)
			assert.Equal(t, append(styp, moof...), written)
		})
	}
}
