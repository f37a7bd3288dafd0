// Package navigation provides URL sanity checks applied before a navigation
// is attempted and failure detection applied immediately after it completes.
package navigation

import "net/url"

// UnknownLocation is the sentinel the browser layer reports when the current
// URL cannot be determined (navigation never completed).
const UnknownLocation = "N/A"

// ValidateURL reports whether raw is an absolute https URL safe to navigate
// to. Any other scheme (http, javascript, data, ...) is rejected. If
// expectedDomain is non-empty the URL's hostname must match it exactly.
func ValidateURL(raw string, expectedDomain string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "https" || u.Hostname() == "" {
		return false
	}
	if expectedDomain != "" && u.Hostname() != expectedDomain {
		return false
	}
	return true
}

// IsFailure reports whether a completed navigation actually failed: either
// the current location is the unknown sentinel, or the current and expected
// URLs both parse and their hostnames differ (a redirect off-site, an
// interstitial, a block page).
func IsFailure(currentURL, expectedURL string) bool {
	if currentURL == UnknownLocation {
		return true
	}
	if expectedURL == "" {
		return false
	}

	current, err := url.Parse(currentURL)
	if err != nil {
		return false
	}
	expected, err := url.Parse(expectedURL)
	if err != nil {
		return false
	}
	if current.Hostname() == "" || expected.Hostname() == "" {
		return false
	}
	return current.Hostname() != expected.Hostname()
}
