package ytdlurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_BareVideoID(t *testing.T) {
	p, err := Parse("dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, KindWatch, p.Kind)
	assert.Equal(t, "dQw4w9WgXcQ", p.VideoID)
}

func TestParse_WatchURL(t *testing.T) {
	p, err := Parse("https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=xyz")
	require.NoError(t, err)
	assert.Equal(t, KindWatch, p.Kind)
	assert.Equal(t, "dQw4w9WgXcQ", p.VideoID)
}

func TestParse_YoutuBeShortLink(t *testing.T) {
	p, err := Parse("https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, KindWatch, p.Kind)
	assert.Equal(t, "dQw4w9WgXcQ", p.VideoID)
}

func TestParse_ChannelLiveURL(t *testing.T) {
	p, err := Parse("https://www.youtube.com/channel/UC123/live")
	require.NoError(t, err)
	assert.Equal(t, KindChannelLive, p.Kind)
}

func TestParse_GvideoDirectRequiresNoclen(t *testing.T) {
	_, err := Parse("https://rr1---sn-abc.googlevideo.com/videoplayback?id=abc.1&itag=140&sq=0")
	assert.Error(t, err)
}

func TestParse_GvideoDirectBuildsSequenceTemplate(t *testing.T) {
	raw := "https://rr1---sn-abc.googlevideo.com/videoplayback?id=abc.1&itag=140&noclen=1&sq=0"
	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, KindGvideoDirect, p.Kind)
	assert.Equal(t, "abc", p.VideoID)
	assert.Equal(t, 140, p.GvideoItag)
	assert.True(t, p.GvideoIsAudio)
	assert.Contains(t, p.GvideoTemplate, "&sq=%d")
}

func TestParse_UnknownHostErrors(t *testing.T) {
	_, err := Parse("https://example.com/watch?v=dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrNotYouTube)
}

func TestExtractVideoIDFromCanonical_FindsID(t *testing.T) {
	html := `<head><link rel="canonical" href="https://www.youtube.com/watch?v=dQw4w9WgXcQ"></head>`
	id, ok := ExtractVideoIDFromCanonical(html)
	assert.True(t, ok)
	assert.Equal(t, "dQw4w9WgXcQ", id)
}

func TestExtractVideoIDFromCanonical_MissingTag(t *testing.T) {
	_, ok := ExtractVideoIDFromCanonical("<html></html>")
	assert.False(t, ok)
}
