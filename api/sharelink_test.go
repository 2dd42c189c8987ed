package api

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushlink/secret-sharing-backend/interfaces"
)

func TestShareURLRoundTrip(t *testing.T) {
	urlKey := bytes.Repeat([]byte{0xA7}, 32)
	id := interfaces.SecretID("3f7b2c51-9a44-4d1e-8f0a-6bde31c0a9e2")

	link, err := ShareURL("https://secrets.example.com/", id, urlKey)
	require.NoError(t, err)
	assert.Equal(t, "https://secrets.example.com/s/3f7b2c51-9a44-4d1e-8f0a-6bde31c0a9e2#v1.p6enp6enp6enp6enp6enp6enp6enp6enp6enp6enp6c", link)

	gotID, gotKey, err := ParseShareURL(link)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, urlKey, gotKey)
}

func TestShareURLRejectsBadKey(t *testing.T) {
	_, err := ShareURL("https://x.example", "some-id", []byte("short"))
	assert.ErrorIs(t, err, interfaces.ErrValidation)

	_, err = ShareURL("https://x.example", "", bytes.Repeat([]byte{1}, 32))
	assert.ErrorIs(t, err, interfaces.ErrValidation)
}

func TestParseShareURLRejections(t *testing.T) {
	good := "https://x.example/s/abc#v1.p6enp6enp6enp6enp6enp6enp6enp6enp6enp6enp6c"
	_, _, err := ParseShareURL(good)
	require.NoError(t, err)

	cases := []struct {
		name string
		link string
	}{
		{"no fragment", "https://x.example/s/abc"},
		{"wrong fragment version", "https://x.example/s/abc#v2.p6enp6enp6enp6enp6enp6enp6enp6enp6enp6enp6c"},
		{"bad key encoding", "https://x.example/s/abc#v1.!!!"},
		{"short key", "https://x.example/s/abc#v1.cGxhaW4"},
		{"missing id segment", "https://x.example/other/abc#v1.p6enp6enp6enp6enp6enp6enp6enp6enp6enp6enp6c"},
		{"empty id", "https://x.example/s/#v1.p6enp6enp6enp6enp6enp6enp6enp6enp6enp6enp6c"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseShareURL(tt.link)
			assert.ErrorIs(t, err, interfaces.ErrValidation)
		})
	}
}
