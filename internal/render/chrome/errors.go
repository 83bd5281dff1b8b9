package chrome

import (
	"errors"
	"fmt"

	"github.com/edgecomet/pagerender/pkg/types"
)

// Render errors - the page itself could not be rendered. All of them wrap types.ErrRender.
var (
	ErrNavigateFailed   = fmt.Errorf("%w: navigation failed", types.ErrRender)
	ErrExtractHTML      = fmt.Errorf("%w: HTML extraction failed", types.ErrRender)
	ErrScreenshot       = fmt.Errorf("%w: screenshot failed", types.ErrRender)
	ErrBaseURL          = fmt.Errorf("%w: base URL could not be applied", types.ErrRender)
	ErrResponseTooLarge = fmt.Errorf("%w: response exceeds maximum size limit", types.ErrRender)
)

// Pool errors - returned during Chrome instance management
var (
	ErrPoolShutdown  = errors.New("pool is shutting down")
	ErrInstanceDead  = errors.New("chrome instance is dead")
	ErrRestartFailed = errors.New("chrome restart failed")
)
