// Package cookiejar loads a Netscape-format cookies.txt file (the format
// curl, wget, and browser export extensions use) into a net/http.CookieJar,
// matching the teacher's http.cookiejar.MozillaCookieJar(cfile) for
// members-only stream access.
package cookiejar

import (
	"bufio"
	"fmt"
	"net/http"
	stdcookiejar "net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
)

func newJar() (*stdcookiejar.Jar, error) {
	return stdcookiejar.New(nil)
}

// Load parses path and returns a CookieJar pre-seeded with its cookies,
// keyed by domain so http.Client attaches them automatically.
func Load(path string) (http.CookieJar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load cookies file: %w", err)
	}
	defer f.Close()

	jar, err := newJar()
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(f)
	byDomain := make(map[string][]*http.Cookie)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// "#HttpOnly_" prefixed lines are still valid cookie lines; only a
		// bare "#" starts a genuine comment.
		httpOnly := strings.HasPrefix(line, "#HttpOnly_")
		if httpOnly {
			line = strings.TrimPrefix(line, "#HttpOnly_")
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			continue
		}

		domain := fields[0]
		includeSubdomains := strings.EqualFold(fields[1], "TRUE")
		secure := strings.EqualFold(fields[3], "TRUE")
		var expires int64
		if v, err := strconv.ParseInt(fields[4], 10, 64); err == nil {
			expires = v
		}

		cookie := &http.Cookie{
			Name:     fields[5],
			Value:    fields[6],
			Path:     fields[2],
			Secure:   secure,
			HttpOnly: httpOnly,
		}
		if includeSubdomains {
			cookie.Domain = domain
		}
		_ = expires // session-scoped for the lifetime of the process

		hostKey := strings.TrimPrefix(domain, ".")
		byDomain[hostKey] = append(byDomain[hostKey], cookie)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to load cookies file: %w", err)
	}

	for host, cookies := range byDomain {
		u := &url.URL{Scheme: "https", Host: host}
		jar.SetCookies(u, cookies)
	}

	return jar, nil
}
