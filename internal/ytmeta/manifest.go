package ytmeta

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rivergate-tools/ytlive/internal/ytlog"
)

// dashManifest mirrors the handful of MPD fields needed to synthesise a
// per-sequence fragment URL (§4.1 "URL table"): one BaseURL per
// Representation, later rewritten into a "sq/{seq}" template.
type dashManifest struct {
	XMLName xml.Name `xml:"MPD"`
	Periods []period `xml:"Period"`
}

type period struct {
	AdaptationSets []adaptationSet `xml:"AdaptationSet"`
}

type adaptationSet struct {
	Representations []representation `xml:"Representation"`
}

type representation struct {
	ID      string `xml:"id,attr"`
	BaseURL string `xml:"BaseURL"`
}

// buildURLTable prefers the DASH manifest over adaptiveFormats, matching the
// teacher's preference order: the manifest's BaseURL already encodes a
// signed, itag-addressed template, whereas adaptiveFormats URLs are
// per-itag but lack the "sq/{seq}" placeholder and must have it appended.
// Only adaptiveFormats URLs carrying "noclen" (fragmented streams) are used,
// and an unusable manifest falls back to adaptiveFormats alone.
func (r *Resolver) buildURLTable(ctx context.Context, manifestURL string, pr *PlayerResponse) (map[int]string, error) {
	urls := make(map[int]string)

	if manifestURL != "" {
		manifestURLs, err := r.fetchManifestURLs(ctx, manifestURL)
		if err != nil {
			ytlog.Debug("dash manifest unusable, falling back to adaptiveFormats: %s", err)
		}
		for itag, u := range manifestURLs {
			urls[itag] = u
		}
	}

	for _, f := range pr.StreamingData.AdaptiveFormats {
		if _, ok := urls[f.Itag]; ok {
			continue
		}
		if !strings.Contains(f.URL, "noclen") {
			continue
		}
		urls[f.Itag] = f.URL + "&sq=%d"
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("no usable format URLs found in manifest or adaptiveFormats")
	}
	return urls, nil
}

func (r *Resolver) fetchManifestURLs(ctx context.Context, manifestURL string) (map[int]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var mpd dashManifest
	if err := xml.Unmarshal(body, &mpd); err != nil {
		return nil, fmt.Errorf("parsing MPD: %w", err)
	}

	urls := make(map[int]string)
	for _, p := range mpd.Periods {
		for _, as := range p.AdaptationSets {
			for _, rep := range as.Representations {
				if rep.BaseURL == "" || rep.ID == "" {
					continue
				}
				itag, ok := parseItag(rep.ID)
				if !ok {
					continue
				}
				urls[itag] = toSequenceTemplate(rep.BaseURL)
			}
		}
	}
	return urls, nil
}

func parseItag(id string) (int, bool) {
	var n int
	_, err := fmt.Sscanf(id, "%d", &n)
	return n, err == nil
}

// toSequenceTemplate appends the "sq/{seq}" path segment a manifest BaseURL
// does not itself carry, turning it into a %d template the coordinator can
// format per sequence number.
func toSequenceTemplate(baseURL string) string {
	return baseURL + "sq/%d"
}
