package entity

import (
	"fmt"
	"net/url"
)

const maxURLLength = 2048

// ValidateFeedURL checks that raw is an absolute http(s) URL with a host.
// Reachability is not checked here; the fetcher refuses private addresses
// at request time.
func ValidateFeedURL(raw string) error {
	if raw == "" {
		return &ValidationError{Field: "url", Message: "URL is required"}
	}
	if len(raw) > maxURLLength {
		return &ValidationError{Field: "url", Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength)}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: "url", Message: fmt.Sprintf("malformed URL: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}
	if u.Hostname() == "" {
		return &ValidationError{Field: "url", Message: "URL must have a valid host"}
	}
	return nil
}
