package marketapi

import "net/http"

// headerTransport wraps an existing RoundTripper and sets the marketplace
// API key and a custom User-Agent header on all outgoing requests.
type headerTransport struct {
	apiKey string
	agent  string
	base   http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.apiKey != "" {
		req.Header.Set("X-API-KEY", t.apiKey)
	}
	if t.agent != "" {
		req.Header.Set("User-Agent", t.agent)
	}
	if t.base != nil {
		return t.base.RoundTrip(req)
	}
	return http.DefaultTransport.RoundTrip(req)
}
