package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ErrQuotaExhausted marks a rate-limit failure that survived every
// retry attempt.
var ErrQuotaExhausted = errors.New("generation quota exhausted")

const (
	maxAttempts = 3
	baseBackoff = 2 * time.Second
)

// sleepFn is swapped out in tests.
var sleepFn = sleepContext

// retryOnQuota runs fn up to maxAttempts times, backing off 2s then 4s
// between attempts. Only quota/rate-limit failures are retried; any
// other error propagates immediately.
func retryOnQuota(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := baseBackoff << (attempt - 2)
			log.Printf("[gemini] quota hit, retrying in %s (attempt %d/%d)", delay, attempt, maxAttempts)
			if err := sleepFn(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsQuotaErr(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrQuotaExhausted, maxAttempts, lastErr)
}

// IsQuotaErr reports whether err is a rate-limit or quota-exhaustion
// signal from the generation service.
func IsQuotaErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExhausted) {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED"
	}

	// Transport wrappers do not always preserve the typed error.
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"429", "quota", "resource_exhausted", "rate limit"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
