package webhook

import "errors"

var (
	// ErrQueueFull indicates the dispatcher cannot accept new events right now.
	ErrQueueFull = errors.New("event queue is full")
	// ErrQueueClosed indicates the dispatcher has been shut down.
	ErrQueueClosed = errors.New("event queue is closed")
)
