package confluence

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Credential is one of the three supported authentication variants.  We
// dispatch on the concrete type rather than sniffing capabilities, so a
// mis-wired credential fails loudly at construction time.
type Credential interface {
	isCredential()
}

// BasicAuth is a username + API-token pair (Confluence Cloud style).
type BasicAuth struct {
	Username string
	Token    string
}

// BearerToken is a Personal Access Token without a username (Data Center
// style).
type BearerToken struct {
	Token string
}

// Session is a pre-authenticated HTTP client whose cookie jar already holds
// a valid SSO session.  The export logic never mutates it; the jar itself
// may rotate cookies internally.
type Session struct {
	Client *http.Client
}

func (BasicAuth) isCredential()   {}
func (BearerToken) isCredential() {}
func (Session) isCredential()     {}

func NewAPI(site string, cred Credential) (*API, error) {
	if site == "" {
		return nil, fmt.Errorf("confluence: configure your Confluence site name with --site")
	}
	if cred == nil {
		return nil, fmt.Errorf("confluence: no credential provided")
	}

	switch c := cred.(type) {
	case BasicAuth:
		if c.Username == "" || c.Token == "" {
			return nil, fmt.Errorf("confluence: basic auth needs both username and token")
		}
	case BearerToken:
		if c.Token == "" {
			return nil, fmt.Errorf("confluence: bearer token is empty, please check auth-token-cmd")
		}
	case Session:
		if c.Client == nil {
			return nil, fmt.Errorf("confluence: session credential has no HTTP client")
		}
	}

	u, err := SiteBaseURL(site)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't parse REST API URL: %w", err)
	}

	return &API{
		BaseURL:    u,
		Client:     &http.Client{Timeout: 30 * time.Second},
		Credential: cred,
		Sleep:      time.Sleep,
	}, nil
}

type API struct {
	// Base of the Confluence instance, e.g. https://ORG.atlassian.net or a
	// custom domain.
	BaseURL *url.URL

	// An HTTP client - you can substitute VCR or whatnot.  Ignored for
	// Session credentials, which carry their own client.
	Client *http.Client

	Credential Credential

	// Sleep is swappable so tests can observe or skip the backoff schedule.
	Sleep func(time.Duration)
}

// SiteBaseURL derives the instance base URL from a site name.  A dotted name
// is taken as a custom domain; a bare name is an *.atlassian.net subdomain.
func SiteBaseURL(site string) (*url.URL, error) {
	site = strings.TrimPrefix(site, "https://")
	site = strings.TrimPrefix(site, "http://")
	site = strings.TrimSuffix(site, "/")

	var base string
	switch {
	case strings.HasSuffix(site, ".atlassian.net"):
		base = "https://" + site
	case strings.Contains(site, "."):
		// custom domain, e.g. confluence.example.com
		base = "https://" + site
	default:
		base = fmt.Sprintf("https://%s.atlassian.net", site)
	}

	u, err := url.ParseRequestURI(base)
	if err != nil {
		return nil, fmt.Errorf("confluence: bad site name %q: %w", site, err)
	}
	return u, nil
}

// httpClient picks the transport appropriate to the credential.
func (api *API) httpClient() *http.Client {
	if s, ok := api.Credential.(Session); ok {
		return s.Client
	}
	return api.Client
}
