// Package ytdlurl parses the input URL forms accepted by the downloader
// (§6 EXTERNAL INTERFACES), grounded on the teacher's ParseInputUrl and
// GetVideoId.
package ytdlurl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"net/url"
)

// Kind identifies what shape of input URL was given.
type Kind int

const (
	// KindWatch is a standard watch?v= or youtu.be URL naming a video ID.
	KindWatch Kind = iota
	// KindChannelLive is a /channel/<id>/live URL that must be resolved by
	// scraping the canonical link tag.
	KindChannelLive
	// KindGvideoDirect is a direct *.googlevideo.com fragment URL.
	KindGvideoDirect
)

// AudioItag is the fixed itag YouTube uses for the fragmented audio track.
const AudioItag = 140

// Parsed is the result of parsing a CLI-supplied URL/ID argument.
type Parsed struct {
	Kind     Kind
	VideoID  string
	ChannelURL string

	// Only set when Kind == KindGvideoDirect.
	GvideoTemplate string // e.g. "https://...&sq=%d"
	GvideoItag     int
	GvideoIsAudio  bool
}

// ErrNotYouTube is returned when the host is not a recognised YouTube-family
// host.
var ErrNotYouTube = errors.New("not a known valid youtube URL")

// Parse classifies a raw URL or bare video ID argument.
func Parse(raw string) (Parsed, error) {
	// Bare 11-character IDs are accepted directly, matching how most users
	// invoke the archived tool ("ytlive dQw4w9WgXcQ").
	if !strings.Contains(raw, "://") && !strings.Contains(raw, ".") && len(raw) == 11 {
		return Parsed{Kind: KindWatch, VideoID: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Parsed{}, err
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	lowerPath := strings.ToLower(u.EscapedPath())
	query := u.Query()

	switch {
	case host == "youtube.com":
		if strings.HasPrefix(lowerPath, "/watch") {
			if !query.Has("v") {
				return Parsed{}, errors.New("youtube URL missing video ID")
			}
			return Parsed{Kind: KindWatch, VideoID: query.Get("v")}, nil
		}
		if strings.HasPrefix(lowerPath, "/channel") && strings.HasSuffix(lowerPath, "live") {
			return Parsed{Kind: KindChannelLive, ChannelURL: raw}, nil
		}
	case host == "youtu.be":
		return Parsed{Kind: KindWatch, VideoID: strings.TrimLeft(u.EscapedPath(), "/")}, nil
	case strings.HasSuffix(host, ".googlevideo.com"):
		return parseGvideo(raw, u, query)
	}

	return Parsed{}, fmt.Errorf("%s: %w", raw, ErrNotYouTube)
}

func parseGvideo(raw string, u *url.URL, query url.Values) (Parsed, error) {
	if !query.Has("noclen") {
		return Parsed{}, errors.New("given Google Video URL is not for a fragmented stream")
	}

	videoID := strings.TrimSuffix(query.Get("id"), ".1")
	itag, err := strconv.Atoi(query.Get("itag"))
	if err != nil {
		return Parsed{}, fmt.Errorf("error parsing itag parameter of Google Video URL: %w", err)
	}

	sqIdx := strings.Index(raw, "&sq=")
	if sqIdx < 0 {
		return Parsed{}, errors.New("could not find 'sq' parameter in given Google Video URL")
	}

	return Parsed{
		Kind:           KindGvideoDirect,
		VideoID:        videoID,
		GvideoTemplate: raw[:sqIdx] + "&sq=%d",
		GvideoItag:     itag,
		GvideoIsAudio:  itag == AudioItag,
	}, nil
}

// CanonicalLinkTag is the HTML marker used to scrape a /channel/.../live
// page for its resolved video ID, matching the teacher's HTML_VIDEO_LINK_TAG.
const CanonicalLinkTag = `<link rel="canonical" href="https://www.youtube.com/watch?v=`

// ExtractVideoIDFromCanonical finds the video ID embedded in a channel-live
// page's canonical link tag.
func ExtractVideoIDFromCanonical(html string) (string, bool) {
	start := strings.Index(html, CanonicalLinkTag)
	if start < 0 {
		return "", false
	}
	start += len(CanonicalLinkTag)
	end := strings.IndexByte(html[start:], '"')
	if end < 0 {
		return "", false
	}
	return html[start : start+end], true
}
