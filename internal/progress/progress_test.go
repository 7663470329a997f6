package progress

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivergate-tools/ytlive/internal/session"
)

func TestAggregator_AccumulatesTotals(t *testing.T) {
	st := session.New()
	agg := New(st)

	updates := make(chan Update)
	done := make(chan struct{})
	var total int64
	var counts map[session.Kind]int

	go func() {
		total, counts = agg.Run(updates)
		close(done)
	}()

	updates <- Update{Kind: session.KindVideo, Bytes: 100, MaxSeq: 1}
	updates <- Update{Kind: session.KindAudio, Bytes: 50, MaxSeq: 1}
	updates <- Update{Kind: session.KindVideo, Bytes: 200, MaxSeq: 2}
	close(updates)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("aggregator did not finish after updates channel closed")
	}

	assert.Equal(t, int64(350), total)
	assert.Equal(t, 2, counts[session.KindVideo])
	assert.Equal(t, 1, counts[session.KindAudio])
}

func TestAggregator_InterruptStopsDispatch(t *testing.T) {
	st := session.New()
	require.False(t, st.IsStopping())

	agg := New(st)
	updates := make(chan Update)
	done := make(chan struct{})

	go func() {
		agg.Run(updates)
		close(done)
	}()

	// Give the goroutine time to install its signal handler before we
	// raise SIGINT against the whole test process.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))

	deadline := time.After(2 * time.Second)
	for !st.IsStopping() {
		select {
		case <-deadline:
			t.Fatal("session was never marked stopping after SIGINT")
		case <-time.After(10 * time.Millisecond):
		}
	}

	close(updates)
	<-done
}

func TestFormatSize_BinaryPrefixes(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.00 KiB", formatSize(1024))
	assert.Equal(t, "1.50 MiB", formatSize(1024*1024*3/2))
}
