package core

import "errors"

var (
	// ErrConnection is returned when the mailbox cannot be opened or listed; the whole cycle is aborted
	ErrConnection = errors.New("mailbox connection error")
	// ErrFetch is returned when the server refuses to return a message
	ErrFetch = errors.New("message fetch error")
	// ErrParse is returned when a raw message cannot be parsed
	ErrParse = errors.New("message parse error")
)
