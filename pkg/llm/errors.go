// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ContentFilterError is raised when a provider's safety filter blocks the
// request. It is never retried at the adapter layer; callers substitute a
// different model instead.
type ContentFilterError struct {
	Provider  string
	ModelName string
	Message   string
}

func (e *ContentFilterError) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.Provider, e.ModelName, e.Message)
}

// TimeoutError is raised when a judge or auditor call exceeds its ceiling.
type TimeoutError struct {
	Provider  string
	ModelName string
	Message   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.Provider, e.ModelName, e.Message)
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsContentFilter reports whether err is a content-filter rejection.
func IsContentFilter(err error) bool {
	var cfe *ContentFilterError
	return errors.As(err, &cfe)
}

// IsTimeout reports whether err is a call-ceiling timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// retryableStatuses are the HTTP statuses the shared retry loop treats as
// transient.
var retryableStatuses = []int{429, 500, 502, 503, 504}

// isRetryable determines if an error should trigger another attempt.
// Content-filter rejections are terminal regardless of wrapping.
func isRetryable(err error) bool {
	if err == nil || IsContentFilter(err) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		for _, status := range retryableStatuses {
			if httpErr.StatusCode == status {
				return true
			}
		}
		return false
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset",
		"connection refused",
		"no such host",
		"i/o timeout",
		"rate limit",
		"too many requests",
		"temporary failure",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// contentFilterMarkers are substrings that identify a safety rejection in a
// provider error body when no structured finish reason is available.
func looksLikeContentFilter(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range []string{"content_policy", "content policy", "content filter", "content_filter", "moderation"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
