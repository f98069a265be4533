package solaredge

import "fmt"

// AuthError reports a failed or unusable portal session: a non-2xx login
// response, or a login that returned 200 without establishing the cookies
// needed for protected calls.
type AuthError struct {
	StatusCode int
	Body       string
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed: HTTP %d - %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// FetchError reports a failed data retrieval: a non-2xx status from a data
// endpoint, or a response whose shape does not match what the portal is
// known to return.
type FetchError struct {
	StatusCode int
	Body       string
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch failed: HTTP %d - %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("fetch failed: %s: %v", e.Message, e.Err)
	default:
		return fmt.Sprintf("fetch failed: %s", e.Message)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }
