package upstream

import "errors"

var (
	ErrNotConnected   = errors.New("upstream not connected")
	ErrRequestTimeout = errors.New("upstream request timed out")
	ErrShuttingDown   = errors.New("upstream link shutting down")
	ErrSendFailed     = errors.New("upstream send failed")
)
