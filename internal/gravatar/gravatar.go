package gravatar

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/polaris-class/clubhouse/internal/config"
)

const baseURL = "https://www.gravatar.com/avatar/"

var (
	validDefaults = []string{"404", "mp", "identicon", "monsterid", "wavatar", "retro", "robohash", "blank"}
	validRatings  = []string{"g", "pg", "r", "x"}
)

// Resolver builds profile picture URLs for member emails.
type Resolver struct {
	cfg *config.GravatarConfig
}

// New creates a resolver. A nil or disabled config yields empty URLs.
func New(cfg *config.GravatarConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

// Enabled reports whether Gravatar URLs are generated.
func (r *Resolver) Enabled() bool {
	return r != nil && r.cfg != nil && r.cfg.Enabled
}

// URL returns the Gravatar URL for email, or "" when disabled or email is empty.
func (r *Resolver) URL(email string) string {
	if !r.Enabled() {
		return ""
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ""
	}

	hash := sha256.Sum256([]byte(email))
	u := baseURL + hex.EncodeToString(hash[:])

	params := url.Values{}
	if r.cfg.DefaultImage != "" {
		params.Add("d", r.cfg.DefaultImage)
	}
	if r.cfg.Rating != "" {
		params.Add("r", r.cfg.Rating)
	}
	if r.cfg.Size > 0 {
		params.Add("s", strconv.Itoa(r.cfg.Size))
	}
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Validate checks the configured default image, rating and size.
func (r *Resolver) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if r.cfg.DefaultImage != "" && !IsValidDefaultImage(r.cfg.DefaultImage) {
		return fmt.Errorf("invalid gravatar default image %q", r.cfg.DefaultImage)
	}
	if r.cfg.Rating != "" && !IsValidRating(r.cfg.Rating) {
		return fmt.Errorf("invalid gravatar rating %q", r.cfg.Rating)
	}
	if r.cfg.Size != 0 && !IsValidSize(r.cfg.Size) {
		return fmt.Errorf("gravatar size must be between 1 and 2048, got %d", r.cfg.Size)
	}
	return nil
}

// IsValidDefaultImage checks if the provided default image value is valid for Gravatar.
func IsValidDefaultImage(defaultImage string) bool {
	return slices.Contains(validDefaults, defaultImage)
}

// IsValidRating checks if the provided rating value is valid for Gravatar.
func IsValidRating(rating string) bool {
	return slices.Contains(validRatings, rating)
}

// IsValidSize checks if the provided size value is valid for Gravatar (1-2048 pixels).
func IsValidSize(size int) bool {
	return size >= 1 && size <= 2048
}
