package entity

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateFeedURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "https feed", url: "https://example.com/feed.xml"},
		{name: "http with port and query", url: "http://example.com:8080/rss?lang=ja"},
		{name: "loopback is accepted here", url: "http://127.0.0.1:9000/rss"},
		{name: "empty", url: "", wantErr: true},
		{name: "ftp scheme", url: "ftp://example.com/feed", wantErr: true},
		{name: "file scheme", url: "file:///etc/passwd", wantErr: true},
		{name: "relative", url: "/feed.xml", wantErr: true},
		{name: "no host", url: "https:///feed", wantErr: true},
		{name: "malformed", url: "http://[::1", wantErr: true},
		{name: "too long", url: "https://example.com/" + strings.Repeat("a", maxURLLength), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFeedURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateFeedURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidationFailed) {
				t.Errorf("error %v does not match ErrValidationFailed", err)
			}
		})
	}
}
