package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualIgnoringTrailingSlash(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "identical", a: "https://example.com/page", b: "https://example.com/page", want: true},
		{name: "browser added slash", a: "https://example.com/", b: "https://example.com", want: true},
		{name: "caller added slash", a: "https://example.com", b: "https://example.com/", want: true},
		{name: "different paths", a: "https://example.com/a", b: "https://example.com/b", want: false},
		{name: "different query", a: "https://example.com/?a=1", b: "https://example.com/", want: false},
		{name: "both empty", a: "", b: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EqualIgnoringTrailingSlash(tt.a, tt.b))
		})
	}
}

func TestExtractHost(t *testing.T) {
	host, err := ExtractHost("https://example.com:8443/page")
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)

	host, err = ExtractHost("https://example.com/page")
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)

	_, err = ExtractHost("not-a-url")
	assert.Error(t, err)

	_, err = ExtractHost("://bad")
	assert.Error(t, err)
}
