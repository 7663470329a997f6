package cookiejar

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCookies = `# Netscape HTTP Cookie File
.youtube.com	TRUE	/	TRUE	0	VISITOR_INFO1_LIVE	abc123
#HttpOnly_.youtube.com	TRUE	/	TRUE	1999999999	SID	def456
# a genuine comment line
`

func TestLoad_ParsesCookiesAndHttpOnlyPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleCookies), 0o644))

	jar, err := Load(path)
	require.NoError(t, err)

	u, _ := url.Parse("https://youtube.com/watch?v=x")
	cookies := jar.Cookies(u)

	names := map[string]string{}
	for _, c := range cookies {
		names[c.Name] = c.Value
	}
	assert.Equal(t, "abc123", names["VISITOR_INFO1_LIVE"])
	assert.Equal(t, "def456", names["SID"])
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load("/no/such/cookies.txt")
	assert.Error(t, err)
}
