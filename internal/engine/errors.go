package engine

import "errors"

// Common fetch errors
var (
	ErrBrowserNotFound = errors.New("chrome browser not found")
	ErrRenderDisabled  = errors.New("javascript rendering is disabled")
	ErrParseError      = errors.New("failed to parse response")
	ErrUnsupportedType = errors.New("unsupported content type")
)
