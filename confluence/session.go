package confluence

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Browser-exported cookie files are probed in this fixed order, mirroring
// the order SSO users tend to have a live Confluence session in.
var browserCookieOrder = []string{"chrome", "firefox", "safari", "edge"}

// DefaultCookieFiles lists the candidate cookie export files under the
// user's config dir, in probe order.
func DefaultCookieFiles(configDir string) []string {
	files := make([]string, 0, len(browserCookieOrder))
	for _, browser := range browserCookieOrder {
		files = append(files, filepath.Join(configDir, fmt.Sprintf("cookies-%s.txt", browser)))
	}
	return files
}

// LoadSession tries each candidate cookie file in order and returns a
// Session from the first one that yields cookies for the target domain.
// Only a total miss across all candidates is fatal.
func LoadSession(domain string, cookieFiles []string) (Session, string, error) {
	for _, file := range cookieFiles {
		session, err := SessionFromCookieFile(file, domain)
		if err != nil {
			continue
		}
		return session, file, nil
	}

	return Session{}, "", fmt.Errorf(
		"confluence: no usable cookies for %s in any of %v; export them from a browser where you're logged in",
		domain, cookieFiles)
}

// SessionFromCookieFile builds a pre-authenticated Session from a
// Netscape-format cookies.txt export, keeping only cookies scoped to the
// given domain.
func SessionFromCookieFile(path string, domain string) (Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return Session{}, fmt.Errorf("confluence: couldn't open cookie file: %w", err)
	}
	defer f.Close()

	var cookies []*http.Cookie

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		cookie, ok := parseCookieLine(scanner.Text())
		if !ok {
			continue
		}
		if !domainMatches(cookie.Domain, domain) {
			continue
		}
		cookies = append(cookies, cookie)
	}
	if err := scanner.Err(); err != nil {
		return Session{}, fmt.Errorf("confluence: couldn't read cookie file %s: %w", path, err)
	}

	if len(cookies) == 0 {
		return Session{}, fmt.Errorf("confluence: no cookies for domain %s in %s", domain, path)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return Session{}, fmt.Errorf("confluence: couldn't create cookie jar: %w", err)
	}

	site, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return Session{}, fmt.Errorf("confluence: bad domain %q: %w", domain, err)
	}
	jar.SetCookies(site, cookies)

	return Session{
		Client: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
	}, nil
}

// parseCookieLine parses one Netscape cookies.txt line:
//
//	domain  includeSubdomains  path  secure  expiry  name  value
//
// Comment lines are skipped, except the #HttpOnly_ prefix curl and friends
// emit, which marks a real cookie.
func parseCookieLine(line string) (*http.Cookie, bool) {
	line = strings.TrimRight(line, "\r\n")
	httpOnly := false
	if strings.HasPrefix(line, "#HttpOnly_") {
		httpOnly = true
		line = strings.TrimPrefix(line, "#HttpOnly_")
	} else if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
		return nil, false
	}

	fields := strings.Split(line, "\t")
	if len(fields) != 7 {
		return nil, false
	}

	expiry, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, false
	}
	if expiry > 0 && time.Unix(expiry, 0).Before(time.Now()) {
		// stale cookie, not worth carrying
		return nil, false
	}

	cookie := &http.Cookie{
		Domain:   strings.TrimPrefix(fields[0], "."),
		Path:     fields[2],
		Secure:   fields[3] == "TRUE",
		Name:     fields[5],
		Value:    fields[6],
		HttpOnly: httpOnly,
	}
	if expiry > 0 {
		cookie.Expires = time.Unix(expiry, 0)
	}
	return cookie, true
}

func domainMatches(cookieDomain, target string) bool {
	return cookieDomain == target || strings.HasSuffix(target, "."+cookieDomain)
}
