// Package args reads render parameters from request query arguments.
package args

import (
	"errors"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/edgecomet/pagerender/internal/common/urlutil"
	"github.com/edgecomet/pagerender/pkg/types"
)

// BadRequestError is a missing or malformed query argument. Its message is
// returned to the client verbatim.
type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string {
	return e.msg
}

// IsBadRequest reports whether err is a *BadRequestError
func IsBadRequest(err error) bool {
	var bre *BadRequestError
	return errors.As(err, &bre)
}

func missing(name string) error {
	return &BadRequestError{msg: "Missing argument: " + name}
}

func invalid(name string) error {
	return &BadRequestError{msg: "Invalid argument: " + name}
}

// Limits bound what a request may ask for
type Limits struct {
	DefaultTimeout    time.Duration
	MaxTimeout        time.Duration
	MaxViewport       int
	BlockPrivateHosts bool
}

// Extractor builds RenderRequests from query arguments
type Extractor struct {
	limits Limits
}

func NewExtractor(limits Limits) *Extractor {
	if limits.DefaultTimeout <= 0 {
		limits.DefaultTimeout = types.DefaultRenderTimeout
	}
	return &Extractor{limits: limits}
}

// HTMLRequest accepts url, baseurl and timeout
func (e *Extractor) HTMLRequest(query url.Values) (*types.RenderRequest, error) {
	return e.common(query, types.OutputHTML)
}

// PNGRequest additionally accepts width and height
func (e *Extractor) PNGRequest(query url.Values) (*types.RenderRequest, error) {
	req, err := e.common(query, types.OutputPNG)
	if err != nil {
		return nil, err
	}

	if req.Width, err = e.dimension(query, "width"); err != nil {
		return nil, err
	}
	if req.Height, err = e.dimension(query, "height"); err != nil {
		return nil, err
	}
	return req, nil
}

func (e *Extractor) common(query url.Values, output types.OutputKind) (*types.RenderRequest, error) {
	target, err := e.pageURL(query, "url", true)
	if err != nil {
		return nil, err
	}
	base, err := e.pageURL(query, "baseurl", false)
	if err != nil {
		return nil, err
	}
	timeout, err := e.timeout(query)
	if err != nil {
		return nil, err
	}

	return &types.RenderRequest{
		URL:     target,
		BaseURL: base,
		Timeout: timeout,
		Output:  output,
	}, nil
}

// pageURL requires an absolute http(s) URL when the argument is present
func (e *Extractor) pageURL(query url.Values, name string, required bool) (string, error) {
	raw, ok := lookup(query, name)
	if !ok {
		if required {
			return "", missing(name)
		}
		return "", nil
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", invalid(name)
	}
	if e.limits.BlockPrivateHosts {
		if err := urlutil.ValidateHostNotPrivateIP(u.Hostname()); err != nil {
			return "", invalid(name)
		}
	}
	return raw, nil
}

// timeout is float seconds; values above the configured maximum are clamped
func (e *Extractor) timeout(query url.Values) (time.Duration, error) {
	raw, ok := lookup(query, "timeout")
	if !ok {
		return e.clamp(e.limits.DefaultTimeout), nil
	}

	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0, invalid("timeout")
	}

	// guard the conversion against overflow before clamping
	if seconds > math.MaxInt64/float64(time.Second) {
		return e.clamp(time.Duration(math.MaxInt64)), nil
	}
	return e.clamp(time.Duration(seconds * float64(time.Second))), nil
}

func (e *Extractor) clamp(d time.Duration) time.Duration {
	if e.limits.MaxTimeout > 0 && d > e.limits.MaxTimeout {
		return e.limits.MaxTimeout
	}
	return d
}

// dimension returns 0 when the argument is absent
func (e *Extractor) dimension(query url.Values, name string) (int, error) {
	raw, ok := lookup(query, name)
	if !ok {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || (e.limits.MaxViewport > 0 && n > e.limits.MaxViewport) {
		return 0, invalid(name)
	}
	return n, nil
}

// lookup returns the first value of name; an empty value counts as absent
func lookup(query url.Values, name string) (string, bool) {
	v := query.Get(name)
	return v, v != ""
}
