package domain

import "errors"

// ErrUnavailable marks failures caused by missing infrastructure, such as a lost
// database connection. Callers surface it as a temporary outage.
var ErrUnavailable = errors.New("service unavailable")
