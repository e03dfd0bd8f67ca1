package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL validates URLs handed to the system browser opener.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}

	if strings.ContainsAny(rawURL, ";&|`$()<>\"'\\\n\r ") {
		return fmt.Errorf("URL contains a shell metacharacter: %q", rawURL)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	return nil
}

// ValidateOrigin checks a websocket Origin header against the dev server's
// own host:port pairs.
func ValidateOrigin(origin string, allowedHosts []string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme %q: only http and https are allowed", originURL.Scheme)
	}

	for _, allowed := range allowedHosts {
		if originURL.Host == allowed {
			return nil
		}
	}

	return fmt.Errorf("origin %q is not allowed", origin)
}
