package args

import (
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/pagerender/pkg/types"
)

func testExtractor() *Extractor {
	return NewExtractor(Limits{
		DefaultTimeout:    30 * time.Second,
		MaxTimeout:        60 * time.Second,
		MaxViewport:       2000,
		BlockPrivateHosts: true,
	})
}

func query(raw string) url.Values {
	q, err := url.ParseQuery(raw)
	if err != nil {
		panic(err)
	}
	return q
}

func TestHTMLRequest(t *testing.T) {
	req, err := testExtractor().HTMLRequest(query("url=http://example.test&baseurl=https://cdn.example.test/&timeout=2.5"))
	require.NoError(t, err)

	assert.Equal(t, "http://example.test", req.URL)
	assert.Equal(t, "https://cdn.example.test/", req.BaseURL)
	assert.Equal(t, 2500*time.Millisecond, req.Timeout)
	assert.Equal(t, types.OutputHTML, req.Output)
	assert.Zero(t, req.Width)
	assert.Zero(t, req.Height)
}

func TestHTMLRequest_Defaults(t *testing.T) {
	req, err := testExtractor().HTMLRequest(query("url=https://example.test/page"))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, req.Timeout)
	assert.Empty(t, req.BaseURL)
}

func TestHTMLRequest_ExtractorDefaultTimeout(t *testing.T) {
	req, err := NewExtractor(Limits{}).HTMLRequest(query("url=https://example.test/"))
	require.NoError(t, err)
	assert.Equal(t, types.DefaultRenderTimeout, req.Timeout)
}

func TestHTMLRequest_TimeoutClamped(t *testing.T) {
	req, err := testExtractor().HTMLRequest(query("url=http://example.test&timeout=3600"))
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, req.Timeout)

	req, err = testExtractor().HTMLRequest(query("url=http://example.test&timeout=1e300"))
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, req.Timeout)
}

func TestPNGRequest(t *testing.T) {
	req, err := testExtractor().PNGRequest(query("url=http://example.test&width=100&height=50"))
	require.NoError(t, err)

	assert.Equal(t, types.OutputPNG, req.Output)
	assert.Equal(t, 100, req.Width)
	assert.Equal(t, 50, req.Height)
}

func TestPNGRequest_DimensionsOptional(t *testing.T) {
	req, err := testExtractor().PNGRequest(query("url=http://example.test&width=640"))
	require.NoError(t, err)

	assert.Equal(t, 640, req.Width)
	assert.Zero(t, req.Height)
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		png   bool
		want  string
	}{
		{"missing url", "", false, "Missing argument: url"},
		{"empty url", "url=", false, "Missing argument: url"},
		{"relative url", "url=/page", false, "Invalid argument: url"},
		{"ftp url", "url=ftp://example.test/", false, "Invalid argument: url"},
		{"private host", "url=http://127.0.0.1:8080/", false, "Invalid argument: url"},
		{"localhost", "url=http://localhost/", false, "Invalid argument: url"},
		{"bad baseurl", "url=http://example.test&baseurl=nope", false, "Invalid argument: baseurl"},
		{"non-numeric timeout", "url=http://example.test&timeout=soon", false, "Invalid argument: timeout"},
		{"zero timeout", "url=http://example.test&timeout=0", false, "Invalid argument: timeout"},
		{"negative timeout", "url=http://example.test&timeout=-1", false, "Invalid argument: timeout"},
		{"nan timeout", "url=http://example.test&timeout=NaN", false, "Invalid argument: timeout"},
		{"non-numeric width", "url=http://example.test&width=wide", true, "Invalid argument: width"},
		{"zero height", "url=http://example.test&height=0", true, "Invalid argument: height"},
		{"oversized width", "url=http://example.test&width=5000", true, "Invalid argument: width"},
		{"missing url png", "width=100", true, "Missing argument: url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.png {
				_, err = testExtractor().PNGRequest(query(tt.query))
			} else {
				_, err = testExtractor().HTMLRequest(query(tt.query))
			}

			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.True(t, IsBadRequest(err))
		})
	}
}

func TestPrivateHostsAllowedWhenNotBlocked(t *testing.T) {
	e := NewExtractor(Limits{MaxTimeout: time.Minute})
	req, err := e.HTMLRequest(query("url=http://127.0.0.1:8080/"))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080/", req.URL)
}

func TestIsBadRequest(t *testing.T) {
	assert.True(t, IsBadRequest(fmt.Errorf("wrapped: %w", missing("url"))))
	assert.False(t, IsBadRequest(errors.New("other")))
	assert.False(t, IsBadRequest(nil))
}
