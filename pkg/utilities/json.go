package utilities

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

// JSON is the codec used for every HTTP body in the service.
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = JSON.NewEncoder(w).Encode(v)
}

// WriteDetail writes the {"detail": msg} error envelope.
func WriteDetail(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"detail": msg})
}

// ErrTrailingData is returned when a body holds more than one JSON value.
var ErrTrailingData = errors.New("extra data after JSON value")

// DecodeJSON reads at most 1 MiB from r into v. The body must hold exactly
// one JSON value; an empty body yields io.EOF.
func DecodeJSON(r io.Reader, v any) error {
	lr := io.LimitReader(r, 1<<20)
	dec := JSON.NewDecoder(lr)
	if err := dec.Decode(v); err != nil {
		return err
	}
	rest, err := io.ReadAll(io.MultiReader(dec.Buffered(), lr))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(rest)) > 0 {
		return ErrTrailingData
	}
	return nil
}
