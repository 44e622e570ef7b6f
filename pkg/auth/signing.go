package auth

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// signFunc computes a Server-Authorization header for a payload.
type signFunc func(payload []byte, contentType string) (string, error)

var (
	errResponseSent         = errors.New("auth: response already sent")
	errStreamingUnsupported = errors.New("auth: streaming is not supported on signed responses")
)

// signingWriter buffers the downstream response so the final body can be
// normalized and signed before anything reaches the client. A streamed body
// cannot be signed, so it does not implement http.Flusher and FlushError
// refuses rather than letting http.ResponseController reach the
// underlying writer.
type signingWriter struct {
	http.ResponseWriter
	sign   signFunc
	logger *slog.Logger
	status int
	buf    bytes.Buffer
	sent   bool
}

func newSigningWriter(w http.ResponseWriter, sign signFunc, logger *slog.Logger) *signingWriter {
	return &signingWriter{ResponseWriter: w, sign: sign, logger: logger}
}

// WriteHeader records the status. Only the first call counts.
func (w *signingWriter) WriteHeader(status int) {
	if w.sent || w.status != 0 {
		return
	}
	if status >= 100 && status < 200 {
		return
	}
	w.status = status
}

// Write appends to the buffered body.
func (w *signingWriter) Write(b []byte) (int, error) {
	if w.sent {
		return 0, errResponseSent
	}
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.buf.Write(b)
}

// FlushError reports that flushing is unsupported. http.ResponseController
// checks for it before following Unwrap.
func (w *signingWriter) FlushError() error {
	return errStreamingUnsupported
}

// Unwrap returns the underlying ResponseWriter.
func (w *signingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// send emits the buffered response exactly once.
func (w *signingWriter) send() {
	if w.sent {
		return
	}
	w.sent = true

	status := w.status
	if status == 0 {
		status = http.StatusOK
	}

	h := w.ResponseWriter.Header()
	var body []byte
	if bodyAllowed(status) {
		body = Normalize(w.buf.Bytes())
		if len(body) > 0 && h.Get("Content-Type") == "" {
			h.Set("Content-Type", http.DetectContentType(body))
		}
	}

	if w.sign != nil {
		header, err := w.sign(body, h.Get("Content-Type"))
		if err != nil {
			w.logger.Error("signing response failed", "error", err)
			h.Del("Content-Length")
			WriteError(w.ResponseWriter, http.StatusInternalServerError, "Internal Server Error", nil)
			return
		}
		h.Set("Server-Authorization", header)
	}

	if bodyAllowed(status) {
		h.Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.ResponseWriter.WriteHeader(status)
	if len(body) > 0 {
		w.ResponseWriter.Write(body)
	}
}

// wrapped reports whether a signingWriter already sits in w's chain.
func wrapped(w http.ResponseWriter) bool {
	for w != nil {
		if _, ok := w.(*signingWriter); ok {
			return true
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return false
		}
		w = u.Unwrap()
	}
	return false
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// Normalize rewrites every code unit at or above U+007F as a lowercase
// \uXXXX escape so that the signed bytes are pure ASCII. Characters outside
// the Basic Multilingual Plane become a UTF-16 surrogate pair. Bodies that
// are not valid UTF-8 are returned unchanged.
func Normalize(body []byte) []byte {
	i := 0
	for i < len(body) && body[i] < 0x7f {
		i++
	}
	if i == len(body) || !utf8.Valid(body[i:]) {
		return body
	}

	out := make([]byte, 0, len(body)+len(body)/2)
	out = append(out, body[:i]...)
	for rest := body[i:]; len(rest) > 0; {
		r, size := utf8.DecodeRune(rest)
		rest = rest[size:]
		switch {
		case r < 0x7f:
			out = append(out, byte(r))
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			out = appendEscape(out, hi)
			out = appendEscape(out, lo)
		default:
			out = appendEscape(out, r)
		}
	}
	return out
}

func appendEscape(dst []byte, r rune) []byte {
	const hex = "0123456789abcdef"
	return append(dst, '\\', 'u',
		hex[(r>>12)&0xf],
		hex[(r>>8)&0xf],
		hex[(r>>4)&0xf],
		hex[r&0xf],
	)
}
