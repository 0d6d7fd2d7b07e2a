package rds

import "errors"

var (
	ErrEmptyConnectionURL = errors.New("rds: empty connection URL")
	ErrFailedToParseURL   = errors.New("rds: failed to parse connection URL")
	ErrConnectionFailed   = errors.New("rds: failed to establish connection")
	ErrHealthcheckFailed  = errors.New("rds: healthcheck failed")
)
