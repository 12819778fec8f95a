package configuration

import (
	"fmt"
	"strings"
)

// Client returns the OAuth client settings for a network id.
// The redirect URI defaults to this service's own callback route.
func (o OAuth) Client(network string) (OAuthClient, bool) {
	var c OAuthClient
	switch strings.ToLower(network) {
	case "facebook":
		c = o.Facebook
	case "instagram":
		c = o.Instagram
	case "twitter":
		c = o.Twitter
	case "youtube":
		c = o.YouTube
	case "tiktok":
		c = o.TikTok
	default:
		return OAuthClient{}, false
	}
	if c.RedirectURI == "" {
		c.RedirectURI = DefaultRedirectURI(network)
	}
	return c, true
}

// DefaultRedirectURI prefers https locally if TLS is enabled and honors the configured port.
func DefaultRedirectURI(network string) string {
	scheme := "http"
	if C.App.TLSEnabled {
		scheme = "https"
	}
	port := C.App.Port
	if port == 0 {
		port = 10001
	}
	return fmt.Sprintf("%s://localhost:%d/auth/%s/callback", scheme, port, strings.ToLower(network))
}
