// Package quality implements stream quality selection (§4.3): parsing a
// youtube-dl-style slash-delimited preference list, building the list of
// qualities actually available for a broadcast, and resolving a preference
// against that availability plus the VP9/H264 and audio-only rules.
package quality

import (
	"strings"

	"github.com/rivergate-tools/ytlive/internal/ytmeta"
)

// AudioOnlyLabel is the quality label meaning "no video track at all".
const AudioOnlyLabel = "audio_only"

// AudioItag is YouTube's fixed itag for the fragmented audio track.
const AudioItag = 140

// ItagPair names the H264 and VP9 itags for one resolution label.
type ItagPair struct {
	H264 int
	VP9  int
}

// Labels lists every known quality label in worst-to-best order, matching
// the fixed VIDEO_LABEL_ITAGS ordering the original tool depends on for
// "best" resolution and for sorting discovered availability.
var Labels = []string{
	AudioOnlyLabel,
	"144p", "240p", "360p", "480p",
	"720p", "720p60",
	"1080p", "1080p60",
}

// ItagsByLabel maps every non-audio label to its H264/VP9 itag pair.
var ItagsByLabel = map[string]ItagPair{
	"144p":    {H264: 160, VP9: 278},
	"240p":    {H264: 133, VP9: 242},
	"360p":    {H264: 134, VP9: 243},
	"480p":    {H264: 135, VP9: 244},
	"720p":    {H264: 136, VP9: 247},
	"720p60":  {H264: 298, VP9: 302},
	"1080p":   {H264: 137, VP9: 248},
	"1080p60": {H264: 299, VP9: 303},
}

func labelPriority(label string) int {
	for i, l := range Labels {
		if l == label {
			return i
		}
	}
	return -1
}

// ParsePreferenceList splits a slash-delimited preference string (e.g.
// "1080p60/720p60/best") and keeps only entries that are either "best" or a
// label present in known. Unknown entries are silently dropped, matching
// the teacher's parse_quality_list.
func ParsePreferenceList(raw string, known []string) []string {
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}

	var out []string
	for _, part := range strings.Split(strings.ToLower(strings.TrimSpace(raw)), "/") {
		part = strings.TrimSpace(part)
		if part == "best" || knownSet[part] {
			out = append(out, part)
		}
	}
	return out
}

// AvailableLabels scans the adaptiveFormats list for video/mp4 entries and
// returns the set of quality labels actually on offer for this broadcast,
// worst to best, always led by "audio_only". VP9 availability is assumed to
// track H264 availability one-for-one, so only the H264 (video/mp4)
// side is used to detect which resolutions exist.
func AvailableLabels(formats []ytmeta.AdaptiveFormat) []string {
	qualities := []string{AudioOnlyLabel}

	for _, f := range formats {
		if !strings.HasPrefix(f.MimeType, "video/mp4") {
			continue
		}
		label := strings.ToLower(f.QualityLabel)
		priority := labelPriority(label)
		if priority < 0 {
			continue
		}

		idx := len(qualities)
		for i, q := range qualities {
			if labelPriority(q) >= priority {
				idx = i
				break
			}
		}
		if idx < len(qualities) && qualities[idx] == label {
			continue
		}
		qualities = append(qualities, "")
		copy(qualities[idx+1:], qualities[idx:])
		qualities[idx] = label
	}

	return qualities
}

// Selection is the outcome of resolving a preference list against
// availability and the VP9 toggle.
type Selection struct {
	Label     string
	Itag      int
	IsVP9     bool
	AudioOnly bool
}

// Resolve walks preferences in order and returns the first one satisfiable
// given available (the sorted AvailableLabels result), urls (the itag → URL
// table from a refresh), and whether VP9 is preferred. "best" resolves to
// the last (highest-priority) entry of available. ok is false when none of
// the preferences could be satisfied, mirroring the teacher's re-prompt
// loop (the caller is expected to ask the user again and retry).
func Resolve(preferences []string, available []string, urls map[int]string, preferVP9 bool) (Selection, bool) {
	for _, pref := range preferences {
		label := strings.TrimSpace(pref)
		if label == "best" {
			if len(available) == 0 {
				continue
			}
			label = available[len(available)-1]
		}

		if label == AudioOnlyLabel {
			return Selection{Label: AudioOnlyLabel, Itag: 0, AudioOnly: true}, true
		}

		pair, known := ItagsByLabel[label]
		if !known {
			continue
		}

		if preferVP9 {
			if _, ok := urls[pair.VP9]; ok {
				return Selection{Label: label, Itag: pair.VP9, IsVP9: true}, true
			}
		}
		if _, ok := urls[pair.H264]; ok {
			return Selection{Label: label, Itag: pair.H264}, true
		}
	}
	return Selection{}, false
}
