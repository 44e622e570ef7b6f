package auth

import (
	"encoding/json"
	"net/http"
)

// ErrorPayload is the JSON body of an authentication error.
type ErrorPayload struct {
	StatusCode int               `json:"statusCode"`
	Error      string            `json:"error"`
	Message    string            `json:"message,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ErrorPresenter renders a classified failure onto the response.
// payload may be nil, in which case only status and reason are known.
type ErrorPresenter interface {
	Present(w http.ResponseWriter, statusCode int, reasonPhrase string, payload *ErrorPayload)
}

// ErrorPresenterFunc adapts a function to the ErrorPresenter interface.
type ErrorPresenterFunc func(w http.ResponseWriter, statusCode int, reasonPhrase string, payload *ErrorPayload)

// Present calls f(w, statusCode, reasonPhrase, payload).
func (f ErrorPresenterFunc) Present(w http.ResponseWriter, statusCode int, reasonPhrase string, payload *ErrorPayload) {
	f(w, statusCode, reasonPhrase, payload)
}

// JSONPresenter is the default ErrorPresenter. It writes
// {"statusCode":...,"error":...} plus message and attributes when known.
var JSONPresenter ErrorPresenter = ErrorPresenterFunc(WriteError)

// WriteError writes payload as JSON with the given status. A nil payload is
// replaced by one holding only statusCode and reasonPhrase.
func WriteError(w http.ResponseWriter, statusCode int, reasonPhrase string, payload *ErrorPayload) {
	if payload == nil {
		payload = &ErrorPayload{StatusCode: statusCode, Error: reasonPhrase}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte(`{"statusCode":500,"error":"Internal Server Error"}`)
		statusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	w.Write(body)
}

// Unauthorized builds a 401 Rejected outcome carrying message both as the
// payload message and as the error attribute of the challenge header.
func Unauthorized(message string) Rejected {
	return Rejected{
		StatusCode: http.StatusUnauthorized,
		Reason:     "Unauthorized",
		Payload: &ErrorPayload{
			StatusCode: http.StatusUnauthorized,
			Error:      "Unauthorized",
			Message:    message,
			Attributes: map[string]string{"error": message},
		},
		Headers: http.Header{
			"Www-Authenticate": []string{`Hawk error="` + message + `"`},
		},
	}
}

// BadRequest builds a 400 MalformedRequest outcome.
func BadRequest(message string) MalformedRequest {
	return MalformedRequest{
		StatusCode: http.StatusBadRequest,
		Reason:     "Bad Request",
		Message:    message,
	}
}

// Internal builds a 500 Rejected outcome that does not leak detail.
func Internal() Rejected {
	return Rejected{
		StatusCode: http.StatusInternalServerError,
		Reason:     "Internal Server Error",
		Payload: &ErrorPayload{
			StatusCode: http.StatusInternalServerError,
			Error:      "Internal Server Error",
			Message:    "An internal server error occurred",
		},
	}
}
