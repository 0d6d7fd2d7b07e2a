package jobstore

import "errors"

var (
	ErrInvalidJobType = errors.New("jobstore: invalid job type")
	ErrJobNotFound    = errors.New("jobstore: job not found")
	ErrInvalidBatchSize = errors.New("jobstore: batch size out of range")
)
