package types

import (
	"errors"
	"fmt"
	"time"
)

// Content types declared by the render endpoints
const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypePNG  = "image/png"
)

// DefaultRenderTimeout is used when a request does not carry a timeout argument
const DefaultRenderTimeout = 30 * time.Second

// ErrRender marks failures reported by the rendering engine for the page itself
// (navigation failed, extraction failed, screenshot failed). Engines wrap their
// own errors with it so the orchestrator can tell them apart from internal faults.
var ErrRender = errors.New("render error")

// OutputKind identifies what a render job produces
type OutputKind int

const (
	OutputHTML OutputKind = iota
	OutputPNG
)

// String returns the string representation of OutputKind
func (k OutputKind) String() string {
	switch k {
	case OutputHTML:
		return "html"
	case OutputPNG:
		return "png"
	default:
		return "unknown"
	}
}

// RenderRequest describes one page render. Built once from query arguments and
// never modified afterwards.
type RenderRequest struct {
	RequestID string
	URL       string
	BaseURL   string
	Width     int // 0 = engine default (image output only)
	Height    int // 0 = full page (image output only)
	Timeout   time.Duration
	Output    OutputKind
}

// Duration wraps time.Duration so config files can use "30s" style values
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// ToDuration converts types.Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer for Duration
func (d Duration) String() string {
	return time.Duration(d).String()
}
