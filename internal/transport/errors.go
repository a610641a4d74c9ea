// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transport

import "fmt"

// StatusError reports a non-2xx upstream response. 5xx statuses are
// retried by Fetch; everything else propagates to the caller untouched.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search API returned HTTP %d for %s", e.Status, e.URL)
}

// Retryable reports whether the status belongs to the retryable class.
func (e *StatusError) Retryable() bool { return e.Status >= 500 }
