package service

import (
	"crypto/rand"
	"fmt"
	"net/url"
	"strings"
)

// slugAlphabet has 64 symbols so a random byte masked to 6 bits maps uniformly.
const slugAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

const maxURLLength = 2048

// Reserved words collide with top-level routes.
var reservedSlugs = map[string]struct{}{
	"api":     {},
	"health":  {},
	"metrics": {},
}

// SlugOptions bounds slug sizes and generation retries.
type SlugOptions struct {
	Length      int
	MaxLength   int
	MaxAttempts int
}

func DefaultSlugOptions() SlugOptions {
	return SlugOptions{Length: 6, MaxLength: 32, MaxAttempts: 10}
}

func randomSlug(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = slugAlphabet[b&63]
	}
	return string(buf), nil
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: URL cannot be empty", ErrInvalidURL)
	}
	if len(rawURL) > maxURLLength {
		return fmt.Errorf("%w: URL is too long (max %d characters)", ErrInvalidURL, maxURLLength)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: URL could not be parsed", ErrInvalidURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: URL must start with http:// or https://", ErrInvalidURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: URL must contain a valid host", ErrInvalidURL)
	}
	return nil
}

// IsSlugShaped reports whether s uses only slug characters and fits maxLength.
func IsSlugShaped(s string, maxLength int) bool {
	if s == "" || len(s) > maxLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(slugAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// ValidateSlug checks a caller supplied slug.
func ValidateSlug(slug string, maxLength int) error {
	if !IsSlugShaped(slug, maxLength) {
		return fmt.Errorf("%w: slug must be 1-%d characters of letters, digits, '_' or '-'", ErrInvalidSlug, maxLength)
	}
	if isReservedSlug(slug) {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidSlug, slug)
	}
	return nil
}

func isReservedSlug(slug string) bool {
	_, reserved := reservedSlugs[strings.ToLower(slug)]
	return reserved
}
