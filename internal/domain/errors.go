package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrMalformedContext    = errors.New("malformed evaluation context")
	ErrMissingParam        = errors.New("required rule parameter missing")
	ErrSuperseded          = errors.New("request superseded")
	ErrQueueFull           = errors.New("commit queue full")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWSDisconnect        = errors.New("websocket disconnected")
	ErrContextDone         = errors.New("context cancelled")
)
