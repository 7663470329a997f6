package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rivergate-tools/ytlive/internal/ytmeta"
)

func TestParsePreferenceList_DropsUnknownEntries(t *testing.T) {
	got := ParsePreferenceList("1080p60/bogus/720p/best", Labels)
	assert.Equal(t, []string{"1080p60", "720p", "best"}, got)
}

func TestAvailableLabels_SortsWorstToBest(t *testing.T) {
	formats := []ytmeta.AdaptiveFormat{
		{MimeType: "video/mp4", QualityLabel: "720p"},
		{MimeType: "video/mp4", QualityLabel: "360p"},
		{MimeType: "video/webm", QualityLabel: "1080p"}, // not mp4, ignored
		{MimeType: "video/mp4", QualityLabel: "1080p60"},
	}
	got := AvailableLabels(formats)
	assert.Equal(t, []string{"audio_only", "360p", "720p", "1080p60"}, got)
}

func TestResolve_PrefersVP9WhenAvailableAndRequested(t *testing.T) {
	urls := map[int]string{
		247: "https://example.com/video?itag=247", // 720p vp9
		136: "https://example.com/video?itag=136", // 720p h264
	}
	sel, ok := Resolve([]string{"720p"}, []string{"audio_only", "720p"}, urls, true)
	assert.True(t, ok)
	assert.Equal(t, 247, sel.Itag)
	assert.True(t, sel.IsVP9)
}

func TestResolve_FallsBackToH264WhenVP9Missing(t *testing.T) {
	urls := map[int]string{
		136: "https://example.com/video?itag=136",
	}
	sel, ok := Resolve([]string{"720p"}, []string{"audio_only", "720p"}, urls, true)
	assert.True(t, ok)
	assert.Equal(t, 136, sel.Itag)
	assert.False(t, sel.IsVP9)
}

func TestResolve_BestPicksHighestAvailable(t *testing.T) {
	urls := map[int]string{
		137: "https://example.com/video?itag=137", // 1080p h264
	}
	sel, ok := Resolve([]string{"best"}, []string{"audio_only", "360p", "1080p"}, urls, false)
	assert.True(t, ok)
	assert.Equal(t, "1080p", sel.Label)
	assert.Equal(t, 137, sel.Itag)
}

func TestResolve_AudioOnlySelection(t *testing.T) {
	sel, ok := Resolve([]string{"audio_only"}, []string{"audio_only"}, map[int]string{}, false)
	assert.True(t, ok)
	assert.True(t, sel.AudioOnly)
	assert.Equal(t, 0, sel.Itag)
}

func TestResolve_NoneSatisfiableReturnsFalse(t *testing.T) {
	urls := map[int]string{}
	_, ok := Resolve([]string{"1080p60"}, []string{"audio_only"}, urls, false)
	assert.False(t, ok)
}
