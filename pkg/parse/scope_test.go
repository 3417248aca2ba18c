package parse

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/webscout/pkg/utils"
)

func TestNewScope(t *testing.T) {
	scope, err := NewScope("https://Example.com:8443/start?x=1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", scope.Host())
	assert.Equal(t, "https://example.com:8443/start?x=1", scope.Seed())
}

func TestNewScope_Invalid(t *testing.T) {
	for _, seed := range []string{"", "not a url", "example.com/path", "/relative", "http://", "http://[::1"} {
		t.Run(seed, func(t *testing.T) {
			_, err := NewScope(seed)
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrScopeParse)
		})
	}
}

func TestScope_Belongs(t *testing.T) {
	scope, err := NewScope("http://example.com/")
	require.NoError(t, err)

	tests := []struct {
		raw  string
		want bool
	}{
		{"http://example.com/about", true},
		{"https://example.com/", true},
		{"http://EXAMPLE.com/caps", true},
		{"http://example.com:8080/port", true},
		{"http://sub.example.com/", false},
		{"http://example.com.evil.org/", false},
		{"http://notexample.com/", false},
		{"http://other.com/", false},
		{"mailto:x@example.com", false},
		{"tel:+15551234", false},
		{"javascript:void(0)", false},
		{"/relative/path", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, scope.BelongsString(tt.raw))
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, scope.Belongs(u))
		})
	}

	assert.False(t, scope.Belongs(nil))
	assert.False(t, scope.BelongsString("http://[::1"))
}
