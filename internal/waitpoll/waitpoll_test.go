package waitpoll

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivergate-tools/ytlive/internal/session"
	"github.com/rivergate-tools/ytlive/internal/ytmeta"
)

// fakeClient replays a scripted sequence of results, one per ResolveOnce
// call, so the poller's state machine can be exercised without a network.
type fakeClient struct {
	results []*ytmeta.RefreshResult
	calls   int
}

func (f *fakeClient) ResolveOnce(ctx context.Context, st *session.State) (*ytmeta.RefreshResult, error) {
	r := f.results[f.calls]
	if f.calls < len(f.results)-1 {
		f.calls++
	}
	return r, nil
}

func (f *fakeClient) Refresh(ctx context.Context, st *session.State) (*ytmeta.RefreshResult, error) {
	return f.ResolveOnce(ctx, st)
}

func TestWaitPoll_SleepsUntilScheduled(t *testing.T) {
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := fixedNow.Add(30 * time.Second)

	client := &fakeClient{results: []*ytmeta.RefreshResult{
		{Verdict: ytmeta.VerdictOfflineFuture, ScheduledStart: sched},
		{Verdict: ytmeta.VerdictOK},
	}}

	st := session.New()
	st.Wait = session.WaitYes

	var sleeps []time.Duration
	now := fixedNow
	p := New(client, nil)
	p.Now = func() time.Time { return now }
	p.Sleep = func(d time.Duration) {
		sleeps = append(sleeps, d)
		now = now.Add(d)
	}

	result, err := p.WaitForPlayable(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, ytmeta.VerdictOK, result.Verdict)
	require.Len(t, sleeps, 1)
	assert.Equal(t, 30*time.Second, sleeps[0])
}

func TestWaitPoll_NoWaitDeclinesImmediately(t *testing.T) {
	client := &fakeClient{results: []*ytmeta.RefreshResult{
		{Verdict: ytmeta.VerdictOfflineLate},
	}}

	st := session.New()
	st.Wait = session.WaitNo

	p := New(client, nil)
	p.Sleep = func(time.Duration) { t.Fatal("should not sleep when wait mode is WaitNo") }

	_, err := p.WaitForPlayable(context.Background(), st)
	assert.ErrorIs(t, err, ErrUserDeclinedWait)
}

func TestWaitPoll_AskDeclinedStopsPolling(t *testing.T) {
	client := &fakeClient{results: []*ytmeta.RefreshResult{
		{Verdict: ytmeta.VerdictOfflineLate},
	}}

	st := session.New()
	st.Wait = session.WaitAsk

	p := New(client, func(string) bool { return false })
	p.Sleep = func(time.Duration) { t.Fatal("should not sleep once the user declines") }

	_, err := p.WaitForPlayable(context.Background(), st)
	assert.ErrorIs(t, err, ErrUserDeclinedWait)
}

func TestWaitPoll_OfflineLateFallsBackToRecheckInterval(t *testing.T) {
	client := &fakeClient{results: []*ytmeta.RefreshResult{
		{Verdict: ytmeta.VerdictOfflineLate},
		{Verdict: ytmeta.VerdictOK},
	}}

	st := session.New()
	st.Wait = session.WaitYes

	var sleeps []time.Duration
	p := New(client, nil)
	p.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	result, err := p.WaitForPlayable(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, ytmeta.VerdictOK, result.Verdict)
	require.Len(t, sleeps, 1)
	assert.Equal(t, ytmeta.RecheckInterval, sleeps[0])
}

func TestWaitPoll_PollDelayClampsRetrySecs(t *testing.T) {
	client := &fakeClient{results: []*ytmeta.RefreshResult{
		{Verdict: ytmeta.VerdictOfflineLate, PollDelay: 5 * time.Second},
		{Verdict: ytmeta.VerdictOK},
	}}

	st := session.New()
	st.Wait = session.WaitYes
	st.RetrySecs = 30 * time.Second

	var sleeps []time.Duration
	p := New(client, nil)
	p.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	result, err := p.WaitForPlayable(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, ytmeta.VerdictOK, result.Verdict)
	require.Len(t, sleeps, 1)
	assert.Equal(t, 5*time.Second, sleeps[0])
}

func TestWaitPoll_PollDelayClampsRecheckInterval(t *testing.T) {
	client := &fakeClient{results: []*ytmeta.RefreshResult{
		{Verdict: ytmeta.VerdictOfflineLate, PollDelay: 3 * time.Second},
		{Verdict: ytmeta.VerdictOK},
	}}

	st := session.New()
	st.Wait = session.WaitYes

	var sleeps []time.Duration
	p := New(client, nil)
	p.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	result, err := p.WaitForPlayable(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, ytmeta.VerdictOK, result.Verdict)
	require.Len(t, sleeps, 1)
	assert.Equal(t, 3*time.Second, sleeps[0])
}

func TestWaitPoll_PollDelayNeverLengthensWait(t *testing.T) {
	client := &fakeClient{results: []*ytmeta.RefreshResult{
		{Verdict: ytmeta.VerdictOfflineLate, PollDelay: time.Hour},
		{Verdict: ytmeta.VerdictOK},
	}}

	st := session.New()
	st.Wait = session.WaitYes

	var sleeps []time.Duration
	p := New(client, nil)
	p.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	_, err := p.WaitForPlayable(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, sleeps, 1)
	assert.Equal(t, ytmeta.RecheckInterval, sleeps[0])
}

func TestWaitPoll_FatalVerdictReturnsError(t *testing.T) {
	client := &fakeClient{results: []*ytmeta.RefreshResult{
		{Verdict: ytmeta.VerdictFatal, Reason: "video is private"},
	}}

	st := session.New()
	p := New(client, nil)
	_, err := p.WaitForPlayable(context.Background(), st)
	assert.EqualError(t, err, "video is private")
}
