package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	// Code is the structured error code from the body, when the server sends one.
	Code string
	// Message is the human readable error from the body, or the raw body text.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// AsStatusError unwraps err into a *StatusError.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// errorBody covers the shapes the backend uses for failures:
// {"error":"..."}, {"error":{"code":"...","message":"..."}}, {"message":"...","code":"..."}.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

func newStatusError(req *Request, resp *Response) *StatusError {
	se := &StatusError{Method: req.Method, Path: req.Path, StatusCode: resp.StatusCode}
	se.Code, se.Message = parseErrorBody(resp.Body)
	return se
}

func parseErrorBody(body []byte) (code, message string) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", ""
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		code, message = eb.Code, eb.Message
		if len(eb.Error) > 0 {
			var s string
			var nested struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			switch {
			case json.Unmarshal(eb.Error, &s) == nil:
				message = s
			case json.Unmarshal(eb.Error, &nested) == nil:
				if nested.Code != "" {
					code = nested.Code
				}
				if nested.Message != "" {
					message = nested.Message
				}
			}
		}
		return code, message
	}

	// Bare JSON string bodies such as "Request not found."
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return "", s
	}
	return "", trimmed
}
