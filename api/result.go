// Package api
// Author: momentics@gmail.com
//
// Consumer-facing flow results.

package api

import "errors"

// FlowReturn is the outcome of one pull as seen by a downstream consumer.
type FlowReturn int

const (
	FlowOK FlowReturn = iota
	FlowEOS
	// FlowFlushing means the component is stopping or was cancelled; the
	// consumer should stop pulling without treating it as fatal.
	FlowFlushing
	FlowError
)

func (f FlowReturn) String() string {
	switch f {
	case FlowOK:
		return "ok"
	case FlowEOS:
		return "eos"
	case FlowFlushing:
		return "flushing"
	default:
		return "error"
	}
}

// FlowFromError maps the error of a pull onto exactly one FlowReturn.
func FlowFromError(err error) FlowReturn {
	switch {
	case err == nil:
		return FlowOK
	case errors.Is(err, ErrEndOfStream):
		return FlowEOS
	case errors.Is(err, ErrCancelled), errors.Is(err, ErrNotReady):
		return FlowFlushing
	default:
		return FlowError
	}
}
