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
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/robuttal/robuttal/internal/log"
)

const (
	// MaxRetries bounds transient-error attempts per completion call.
	MaxRetries = 3
	// InitialBackoff is the delay before the first retry.
	InitialBackoff = 1 * time.Second
	// BackoffMultiplier doubles the delay on each retry.
	BackoffMultiplier = 2.0
)

// withRetry runs fn up to MaxRetries times, backing off exponentially on
// retryable errors. Content-filter and fatal errors return immediately.
func withRetry[T any](ctx context.Context, modelName string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}

		if attempt == MaxRetries-1 {
			break
		}

		backoff := calculateBackoff(attempt)
		log.Warn("transient provider error, backing off before retry",
			zap.String("model", modelName),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", MaxRetries),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, fmt.Errorf("completion cancelled during retry: %w", ctx.Err())
		}
	}

	log.Error("all retries failed",
		zap.String("model", modelName),
		zap.Int("attempts", MaxRetries),
		zap.Error(lastErr),
	)
	return zero, fmt.Errorf("completion failed after %d attempts: %w", MaxRetries, lastErr)
}

// calculateBackoff returns InitialBackoff * (BackoffMultiplier ^ attempt).
func calculateBackoff(attempt int) time.Duration {
	ms := float64(InitialBackoff.Milliseconds()) * math.Pow(BackoffMultiplier, float64(attempt))
	return time.Duration(ms) * time.Millisecond
}
