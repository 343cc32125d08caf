package model

import "errors"

var (
	ErrUnknownLayer      = errors.New("unknown layer")
	ErrUpstream          = errors.New("upstream error")
	ErrTimeout           = errors.New("timeout")
	ErrMalformedResponse = errors.New("malformed response")
	ErrConfig            = errors.New("configuration error")
	ErrTemplate          = errors.New("template error")

	// request level, aborts before any provider call
	ErrMapNotDefined = errors.New("map not defined")
)

// ErrorCode maps err onto the name used in failure markers and metrics.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownLayer):
		return "UnknownLayer"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	case errors.Is(err, ErrUpstream):
		return "UpstreamError"
	case errors.Is(err, ErrMalformedResponse):
		return "MalformedResponse"
	case errors.Is(err, ErrConfig):
		return "ConfigError"
	case errors.Is(err, ErrTemplate):
		return "TemplateError"
	case errors.Is(err, ErrMapNotDefined):
		return "MapNotDefined"
	default:
		return "InternalError"
	}
}
