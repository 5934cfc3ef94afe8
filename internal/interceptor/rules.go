package interceptor

import (
	"net/http"

	"pollster/internal/httpclient"
)

// Class is the outcome of classifying a failed response.
type Class int

const (
	ClassNone Class = iota
	// ClassRateLimited is a 429 from any endpoint.
	ClassRateLimited
	// ClassSignOut means the session is no longer valid and the user must be signed out.
	ClassSignOut
	// ClassSubscription means the account lacks the plan for this feature.
	ClassSubscription
	// ClassSuppressed failures are expected and never surface to the user.
	ClassSuppressed
	// ClassError is every other failure; it surfaces as a generic error toast.
	ClassError
)

func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassSignOut:
		return "sign_out"
	case ClassSubscription:
		return "subscription_required"
	case ClassSuppressed:
		return "suppressed"
	case ClassError:
		return "error"
	default:
		return "none"
	}
}

// DefaultErrorMessage is shown when a failure carries no message.
const DefaultErrorMessage = "An error occurred"

// Rules maps structured error codes, with exact-message fallbacks, to classes.
// Codes are checked first; messages exist because the backend still answers
// some failures with English text only.
type Rules struct {
	SignOutCodes         []string
	SignOutMessages      []string
	SubscriptionCodes    []string
	SubscriptionMessages []string
	SuppressedCodes      []string
	SuppressedMessages   []string
	SuppressedStatuses   []int
}

func DefaultRules() Rules {
	return Rules{
		SignOutCodes:         []string{"user_not_found", "user_suspended"},
		SignOutMessages:      []string{"User not found", "User is suspended"},
		SubscriptionCodes:    []string{"insufficient_privileges"},
		SubscriptionMessages: []string{"Access denied, insufficient privileges"},
		SuppressedCodes:      []string{"no_token", "token_expired"},
		SuppressedMessages: []string{
			"No token, authorization denied",
			"Token expired",
			"Request not found.",
			"Composite not found.",
		},
		SuppressedStatuses: []int{http.StatusNotFound},
	}
}

// Classify decides what a failed response means for the process. A sign-out
// failure also carries a user-facing toast, which is why the second return
// value reports whether a generic error event should be raised as well.
func (r Rules) Classify(se *httpclient.StatusError) (class Class, toast bool) {
	if se.StatusCode == http.StatusTooManyRequests {
		return ClassRateLimited, false
	}
	if matches(se, r.SubscriptionCodes, r.SubscriptionMessages) {
		return ClassSubscription, false
	}
	if matches(se, r.SignOutCodes, r.SignOutMessages) {
		return ClassSignOut, true
	}
	if matches(se, r.SuppressedCodes, r.SuppressedMessages) || containsInt(r.SuppressedStatuses, se.StatusCode) {
		return ClassSuppressed, false
	}
	return ClassError, true
}

func matches(se *httpclient.StatusError, codes, messages []string) bool {
	if se.Code != "" && containsString(codes, se.Code) {
		return true
	}
	return se.Message != "" && containsString(messages, se.Message)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
