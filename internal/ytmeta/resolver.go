// Package ytmeta implements the broadcast metadata resolver (§4.1): it
// fetches the current watch-page player response, classifies playability,
// and builds the itag → fragment-URL-template table, preferring the DASH
// manifest over adaptiveFormats per §4.1 "URL table".
package ytmeta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/http2"

	"github.com/rivergate-tools/ytlive/internal/session"
	"github.com/rivergate-tools/ytlive/internal/ytlog"
)

// RecheckInterval is the rate-limit window from §4.1 "Rate limiting".
const RecheckInterval = 15 * time.Second

const playerResponseDeclaration = "var ytInitialPlayerResponse ="

const watchURLFormat = "https://www.youtube.com/watch?v=%s"

// Verdict classifies the outcome of a resolve attempt (§4.1 contract).
type Verdict int

const (
	// VerdictOK means playability is OK and URLs/format data were updated.
	VerdictOK Verdict = iota
	// VerdictOfflineFuture means the broadcast is scheduled for later.
	VerdictOfflineFuture
	// VerdictOfflineLate means the scheduled time has passed but the
	// broadcast has not gone live.
	VerdictOfflineLate
	// VerdictFatal means the broadcast cannot be downloaded at all.
	VerdictFatal
	// VerdictStale means the rate limit prevented a real refresh; the
	// caller should treat prior state as still valid.
	VerdictStale
	// VerdictTaperingOff means the broadcast was privatised or otherwise
	// made unreachable mid-download; callers should set Unavailable and
	// let in-flight URLs run out naturally.
	VerdictTaperingOff
)

// Client is the broadcast metadata client interface the core depends on.
// Resolver below is its one concrete, YouTube-flavoured implementation.
type Client interface {
	Refresh(ctx context.Context, st *session.State) (*RefreshResult, error)
	ResolveOnce(ctx context.Context, st *session.State) (*RefreshResult, error)
}

// RefreshResult carries everything a caller needs after a refresh: the
// raw player response (for quality selection / filename templating) and
// the itag → URL-template table built from the DASH manifest or
// adaptiveFormats.
type RefreshResult struct {
	Verdict        Verdict
	PlayerResponse *PlayerResponse
	URLs           map[int]string
	ScheduledStart time.Time
	PollDelay      time.Duration
	Reason         string
}

// Resolver is the concrete watch-page + DASH-manifest metadata client.
type Resolver struct {
	HTTPClient *http.Client
	VideoID    string
}

// New builds a Resolver with an HTTP/2-enabled client (teacher dependency
// golang.org/x/net/http2, wired here rather than left to transport
// auto-negotiation, per SPEC_FULL.md's DOMAIN STACK table). network forces
// the dialer to "tcp4" or "tcp6" (the CLI's -4/-6 flags); pass "" to let the
// OS pick.
func New(videoID string, cookieJar http.CookieJar, network string) (*Resolver, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, netw, addr string) (net.Conn, error) {
			if network != "" {
				netw = network
			}
			return dialer.DialContext(ctx, netw, addr)
		},
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configuring http2 transport: %w", err)
	}
	return &Resolver{
		HTTPClient: &http.Client{
			Transport: transport,
			Jar:       cookieJar,
			Timeout:   30 * time.Second,
		},
		VideoID: videoID,
	}, nil
}

var _ Client = (*Resolver)(nil)

// Refresh implements the full §4.1 "Rate limiting" contract: during an
// active download, almost nothing worth re-fetching changes inside
// RecheckInterval except whether the broadcast is still live, so repeated
// calls within the window are short-circuited to VerdictStale without
// hitting the network.
func (r *Resolver) Refresh(ctx context.Context, st *session.State) (*RefreshResult, error) {
	if st.IsStopping() {
		return &RefreshResult{Verdict: VerdictStale}, nil
	}
	if st.IsUnavailable() {
		// §3 Invariant 5: no refreshes once unavailable.
		return &RefreshResult{Verdict: VerdictTaperingOff}, nil
	}
	if time.Since(st.LastRefreshedAt()) < RecheckInterval {
		return &RefreshResult{Verdict: VerdictStale}, nil
	}
	return r.ResolveOnce(ctx, st)
}

// ResolveOnce fetches and classifies the current player response without
// consulting the rate limit, for callers (internal/waitpoll) that already
// own their own pacing, such as the pre-broadcast wait loop.
func (r *Resolver) ResolveOnce(ctx context.Context, st *session.State) (*RefreshResult, error) {
	st.SetLastRefreshedAt(time.Now())

	htmlBody, err := r.fetchWatchPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching watch page: %w", err)
	}

	pr, err := ExtractPlayerResponse(htmlBody)
	if err != nil {
		return nil, fmt.Errorf("extracting player response: %w", err)
	}

	return r.classify(ctx, st, pr)
}

func (r *Resolver) classify(ctx context.Context, st *session.State, pr *PlayerResponse) (*RefreshResult, error) {
	if pr.VideoDetails.VideoID == "" {
		// videoDetails absent: §4.1 failure semantics.
		if st.IsInProgress() {
			ytlog.Warn("video details no longer available mid download; stream was likely privated after finishing")
			st.SetLive(false)
			st.SetUnavailable(true)
			return &RefreshResult{Verdict: VerdictTaperingOff}, nil
		}
		return &RefreshResult{Verdict: VerdictFatal, Reason: "video details not found, video is likely private or does not exist"}, nil
	}

	status := pr.PlayabilityStatus.Status
	switch status {
	case "ERROR":
		if st.IsInProgress() {
			st.SetLive(false)
			return &RefreshResult{Verdict: VerdictTaperingOff, Reason: pr.PlayabilityStatus.Reason}, nil
		}
		return &RefreshResult{Verdict: VerdictFatal, Reason: pr.PlayabilityStatus.Reason}, nil

	case "UNPLAYABLE":
		loggedIn := !pr.ResponseContext.MainAppWebResponseContext.LoggedOut
		ytlog.Warn("playability status: unplayable. reason: %s. logged in: %v", pr.PlayabilityStatus.Reason, loggedIn)
		if st.IsInProgress() {
			st.SetLive(false)
			st.SetUnavailable(true)
			return &RefreshResult{Verdict: VerdictTaperingOff, Reason: pr.PlayabilityStatus.Reason}, nil
		}
		return &RefreshResult{Verdict: VerdictFatal, Reason: pr.PlayabilityStatus.Reason}, nil

	case "LIVE_STREAM_OFFLINE":
		if st.IsInProgress() {
			// Routine mid-stream turbulence; stay stale-ok and keep polling.
			return &RefreshResult{Verdict: VerdictStale}, nil
		}

		renderer := pr.PlayabilityStatus.LiveStreamability.LiveStreamabilityRenderer
		var pollDelay time.Duration
		if ms, err := strconv.Atoi(renderer.PollDelayMs); err == nil && ms > 0 {
			pollDelay = time.Duration(ms) * time.Millisecond
		}

		schedStr := renderer.OfflineSlate.LiveStreamOfflineSlateRenderer.ScheduledStartTime
		if schedStr != "" {
			if schedUnix, err := strconv.ParseInt(schedStr, 10, 64); err == nil {
				sched := time.Unix(schedUnix, 0)
				if time.Now().Before(sched) {
					return &RefreshResult{Verdict: VerdictOfflineFuture, ScheduledStart: sched, PollDelay: pollDelay}, nil
				}
			}
		}
		return &RefreshResult{Verdict: VerdictOfflineLate, PollDelay: pollDelay}, nil

	case "OK":
		// fall through to URL table construction below.

	default:
		if st.IsInProgress() {
			st.SetLive(false)
		}
		return &RefreshResult{Verdict: VerdictFatal, Reason: "unknown playability status: " + status}, nil
	}

	if !pr.VideoDetails.IsLiveContent {
		return &RefreshResult{Verdict: VerdictFatal, Reason: "not a livestream"}, nil
	}

	if dashURL := pr.StreamingData.DashManifestURL; dashURL != "" {
		st.SetDashManifestURL(dashURL)
	}
	if len(pr.StreamingData.AdaptiveFormats) > 0 {
		st.SetTargetDurationSec(firstPositiveTargetDuration(pr.StreamingData.AdaptiveFormats))
	}

	urls, err := r.buildURLTable(ctx, st.DashManifestURL(), pr)
	if err != nil {
		ytlog.Debug("error building url table: %s", err)
	}

	st.SetLive(pr.Microformat.PlayerMicroformatRenderer.LiveBroadcastDetails.IsLiveNow)

	return &RefreshResult{Verdict: VerdictOK, PlayerResponse: pr, URLs: urls}, nil
}

func firstPositiveTargetDuration(formats []AdaptiveFormat) int {
	for _, f := range formats {
		if f.TargetDurationSec > 0 {
			return f.TargetDurationSec
		}
	}
	return 5
}

func (r *Resolver) fetchWatchPage(ctx context.Context) (string, error) {
	u := fmt.Sprintf(watchURLFormat, r.VideoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:102.0) Gecko/20100101 Firefox/102.0")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ExtractPlayerResponse locates the script tag whose text begins with
// "var ytInitialPlayerResponse =" using golang.org/x/net/html's tokenizer
// (teacher dependency golang.org/x/net, used here instead of brittle
// substring scanning), then slices the JSON object out with a brace-depth
// counter and unmarshals it.
func ExtractPlayerResponse(watchPageHTML string) (*PlayerResponse, error) {
	raw, err := findPlayerResponseJSON(watchPageHTML)
	if err != nil {
		return nil, err
	}
	return parsePlayerResponseJSON(raw)
}

func findPlayerResponseJSON(watchPageHTML string) (string, error) {
	tokenizer := html.NewTokenizer(strings.NewReader(watchPageHTML))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return "", fmt.Errorf("player response declaration not found in watch page")
		case html.TextToken:
			text := string(tokenizer.Text())
			idx := strings.Index(text, playerResponseDeclaration)
			if idx < 0 {
				continue
			}
			start := idx + len(playerResponseDeclaration)
			objStart := strings.IndexByte(text[start:], '{')
			if objStart < 0 {
				continue
			}
			objStart += start
			return extractBalancedObject(text, objStart)
		}
	}
}

// extractBalancedObject returns the JSON object in s starting at openIdx
// (which must point at '{'), tracking string literals and brace depth so
// braces inside quoted strings don't confuse the scan.
func extractBalancedObject(s string, openIdx int) (string, error) {
	depth := 0
	inString := false
	escaped := false

	for i := openIdx; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[openIdx : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated player response JSON object")
}

func parsePlayerResponseJSON(raw string) (*PlayerResponse, error) {
	var pr PlayerResponse
	if err := json.Unmarshal([]byte(raw), &pr); err != nil {
		return nil, fmt.Errorf("unmarshalling player response: %w", err)
	}
	return &pr, nil
}

