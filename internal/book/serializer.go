package book

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

const maxFieldLength = 255

// Field validation messages.
const (
	MsgRequired   = "This field is required."
	MsgNull       = "This field may not be null."
	MsgBlank      = "This field may not be blank."
	MsgTooLong    = "Ensure this field has no more than 255 characters."
	MsgBadDate    = "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."
	MsgNotString  = "Not a valid string."
	MsgNullChar   = "Null characters are not allowed."
	MsgNoData     = "No data provided"
	nonFieldError = "non_field_errors"
)

// Wire is the JSON representation of a book. Owner and timestamps are never exposed.
type Wire struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	PublicationDate string `json:"publication_date"`
}

func ToWire(b *entity.Book) Wire {
	return Wire{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		PublicationDate: b.PublicationDate.Format(entity.DateLayout),
	}
}

func ToWireList(books []*entity.Book) []Wire {
	out := make([]Wire, 0, len(books))
	for _, b := range books {
		out = append(out, ToWire(b))
	}
	return out
}

// ParseError means the request body was not a JSON object.
type ParseError struct{ Err error }

func (e *ParseError) Error() string { return "JSON parse error - " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError maps a field name to its messages.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], " ")))
	}
	return "invalid book: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// DecodePayload reads a book payload. Keys other than title, author and
// publication_date are ignored. Unless partial is set every field is required.
func DecodePayload(r io.Reader, partial bool) (entity.Patch, error) {
	var p entity.Patch
	var raw map[string]jsoniter.RawMessage
	if err := utilities.DecodeJSON(r, &raw); err != nil {
		if !errors.Is(err, io.EOF) {
			return p, &ParseError{Err: err}
		}
		// an empty body reads as an empty object
		raw = map[string]jsoniter.RawMessage{}
	}
	verr := &ValidationError{}
	if raw == nil {
		verr.add(nonFieldError, MsgNoData)
		return p, verr
	}

	if v, ok := raw["title"]; ok {
		if s, msg := decodeString(v); msg != "" {
			verr.add("title", msg)
		} else {
			p.Title = &s
		}
	} else if !partial {
		verr.add("title", MsgRequired)
	}

	if v, ok := raw["author"]; ok {
		if s, msg := decodeString(v); msg != "" {
			verr.add("author", msg)
		} else {
			p.Author = &s
		}
	} else if !partial {
		verr.add("author", MsgRequired)
	}

	if v, ok := raw["publication_date"]; ok {
		if d, msg := decodeDate(v); msg != "" {
			verr.add("publication_date", msg)
		} else {
			p.PublicationDate = &d
		}
	} else if !partial {
		verr.add("publication_date", MsgRequired)
	}

	if len(verr.Fields) > 0 {
		return entity.Patch{}, verr
	}
	return p, nil
}

// decodeString accepts JSON strings and numbers, trims surrounding
// whitespace and enforces the non-blank and length rules.
func decodeString(v jsoniter.RawMessage) (string, string) {
	text := strings.TrimSpace(string(v))
	if text == "null" {
		return "", MsgNull
	}
	var s string
	switch {
	case strings.HasPrefix(text, `"`):
		if err := utilities.JSON.Unmarshal(v, &s); err != nil {
			return "", MsgNotString
		}
	case isJSONNumber(text):
		s = text
	default:
		return "", MsgNotString
	}
	if strings.ContainsRune(s, 0) {
		return "", MsgNullChar
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", MsgBlank
	}
	if utf8.RuneCountInString(s) > maxFieldLength {
		return "", MsgTooLong
	}
	return s, ""
}

func isJSONNumber(text string) bool {
	if text == "" {
		return false
	}
	c := text[0]
	return c == '-' || (c >= '0' && c <= '9')
}

func decodeDate(v jsoniter.RawMessage) (time.Time, string) {
	text := strings.TrimSpace(string(v))
	if text == "null" {
		return time.Time{}, MsgNull
	}
	var s string
	if err := utilities.JSON.Unmarshal(v, &s); err != nil {
		return time.Time{}, MsgBadDate
	}
	d, err := time.Parse(entity.DateLayout, strings.TrimSpace(s))
	if err != nil || d.Year() < 1 {
		return time.Time{}, MsgBadDate
	}
	return d, ""
}

// requireComplete reports every unset field of p as required.
func requireComplete(p entity.Patch) error {
	if p.Complete() {
		return nil
	}
	verr := &ValidationError{}
	if p.Title == nil {
		verr.add("title", MsgRequired)
	}
	if p.Author == nil {
		verr.add("author", MsgRequired)
	}
	if p.PublicationDate == nil {
		verr.add("publication_date", MsgRequired)
	}
	return verr
}
