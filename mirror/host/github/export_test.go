package github

import "net/url"

// SetBaseURLForTest points the underlying client at a test
// server. The URL must end with a trailing slash.
func (h *Hub) SetBaseURLForTest(u *url.URL) {
	h.client.BaseURL = u
}
