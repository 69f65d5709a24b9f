package gravatar

import (
	"testing"

	"github.com/polaris-class/clubhouse/internal/config"
	"github.com/stretchr/testify/assert"
)

const testHash = "973dfe463ec85785f5f95af5ba3906eedb2d931c24e69824a89ea65dba4e813b"

func TestURL(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		config   *config.GravatarConfig
		expected string
	}{
		{
			name:     "disabled",
			email:    "test@example.com",
			config:   &config.GravatarConfig{Enabled: false},
			expected: "",
		},
		{
			name:     "nil config",
			email:    "test@example.com",
			expected: "",
		},
		{
			name:     "blank email",
			email:    "   ",
			config:   &config.GravatarConfig{Enabled: true},
			expected: "",
		},
		{
			name:     "no options",
			email:    "test@example.com",
			config:   &config.GravatarConfig{Enabled: true},
			expected: baseURL + testHash,
		},
		{
			name:  "normalised email with all options",
			email: "  TEST@EXAMPLE.COM ",
			config: &config.GravatarConfig{
				Enabled:      true,
				DefaultImage: "identicon",
				Rating:       "pg",
				Size:         120,
			},
			expected: baseURL + testHash + "?d=identicon&r=pg&s=120",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.config).URL(tt.email))
		})
	}
}

func TestNilResolver(t *testing.T) {
	var r *Resolver
	assert.False(t, r.Enabled())
	assert.Empty(t, r.URL("a@b.c"))
	assert.NoError(t, r.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *config.GravatarConfig
		wantErr bool
	}{
		{"defaults", &config.GravatarConfig{Enabled: true, DefaultImage: "identicon", Rating: "g", Size: 80}, false},
		{"disabled ignores values", &config.GravatarConfig{Enabled: false, Rating: "nc-17"}, false},
		{"bad default image", &config.GravatarConfig{Enabled: true, DefaultImage: "cat"}, true},
		{"bad rating", &config.GravatarConfig{Enabled: true, Rating: "nc-17"}, true},
		{"size too large", &config.GravatarConfig{Enabled: true, Size: 4096}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.config).Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidators(t *testing.T) {
	assert.True(t, IsValidDefaultImage("robohash"))
	assert.False(t, IsValidDefaultImage(""))
	assert.True(t, IsValidRating("x"))
	assert.False(t, IsValidRating("G"))
	assert.True(t, IsValidSize(1))
	assert.True(t, IsValidSize(2048))
	assert.False(t, IsValidSize(0))
}
