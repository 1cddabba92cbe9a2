// Package httputil holds the HTTP plumbing shared by the generation backend
// client and the readiness checks of the CLI.
//
// [Retry] runs an operation with exponential backoff and only repeats
// failures wrapped in [RetryableError]:
//
//	err := httputil.Retry(ctx, httputil.Policy{Attempts: 10, Delay: 500 * time.Millisecond}, func(int) error {
//	    return httputil.CheckStatus(resp.StatusCode)
//	})
//
// [CheckStatus] classifies a response code: 2xx is success, 5xx and 429 are
// retryable, everything else is a permanent failure.
package httputil
