package httpc

import "errors"

var (
	ErrAddrResolution = errors.New("address resolution failed")
	ErrSocketCreation = errors.New("failed to create socket")
	ErrConnFailed     = errors.New("could not connect")
	ErrSendFailed     = errors.New("could not send request")
	ErrRecvFailed     = errors.New("could not read response")
	ErrPeerClosed     = errors.New("remote closed connection")
	ErrTimeout        = errors.New("request timeout")
	ErrQueueFull      = errors.New("queue is full")
	ErrBadResource    = errors.New("invalid resource")
)
