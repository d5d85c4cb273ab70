package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps request bodies; task instructions are prose, not uploads
const maxBodyBytes = 1 << 20

// Validator is implemented by request types that check themselves after
// decoding. Parse calls it last.
type Validator interface {
	Validate() error
}

// Parse fills v from the request: `path:"name"` fields from chi URL params,
// `form:"name"` fields from the query string, then the JSON body. If v
// implements Validator its verdict is returned.
func Parse(r *http.Request, v any) error {
	bindParams(r, v)
	if err := decodeBody(r, v); err != nil {
		return err
	}
	if val, ok := v.(Validator); ok {
		return val.Validate()
	}
	return nil
}

func bindParams(r *http.Request, v any) {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.IsNil() || val.Elem().Kind() != reflect.Struct {
		return
	}
	val = val.Elem()
	typ := val.Type()
	query := r.URL.Query()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanSet() {
			continue
		}
		tag := typ.Field(i).Tag
		if name := tag.Get("path"); name != "" {
			if s := chi.URLParam(r, name); s != "" {
				setFieldValue(field, s)
			}
		}
		if name, _, _ := strings.Cut(tag.Get("form"), ","); name != "" {
			if s := query.Get(name); s != "" {
				setFieldValue(field, s)
			}
		}
	}
}

// decodeBody reads a JSON body when there is one. ContentLength is -1 for
// chunked bodies, so only an explicit zero means empty.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// setFieldValue sets a struct field from a string; unparsable values are ignored
func setFieldValue(field reflect.Value, value string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	}
}

// OkJSON writes a JSON response with 200 OK status
func OkJSON(w http.ResponseWriter, v any) {
	WriteJSON(w, http.StatusOK, v)
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the error body of every failed API call
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error answers 400 with err's message
func Error(w http.ResponseWriter, err error) {
	ErrorWithCode(w, http.StatusBadRequest, err.Error())
}

// ErrorWithCode writes an ErrorResponse with a specific status code
func ErrorWithCode(w http.ResponseWriter, code int, message string) {
	WriteJSON(w, code, ErrorResponse{Code: code, Message: message})
}

// NotFound writes a 404 response
func NotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "not found"
	}
	ErrorWithCode(w, http.StatusNotFound, message)
}

// Unauthorized writes a 401 response
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "unauthorized"
	}
	ErrorWithCode(w, http.StatusUnauthorized, message)
}

// InternalError writes a 500 response without leaking the cause
func InternalError(w http.ResponseWriter, message string) {
	if message == "" {
		message = "internal server error"
	}
	ErrorWithCode(w, http.StatusInternalServerError, message)
}
