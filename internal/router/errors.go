package router

import "errors"

var (
	ErrNoArguments    = errors.New("notification carried no arguments")
	ErrUnknownChannel = errors.New("unknown notification channel")
)
