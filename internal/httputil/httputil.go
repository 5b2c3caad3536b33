// Package httputil holds the small request/response helpers shared by the
// HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Parse fills v from the request. Fields tagged `path:"name"` take chi URL
// params and fields tagged `form:"name"` take query values; a JSON body, of
// any length or transfer encoding, is decoded on top.
func Parse(r *http.Request, v any) error {
	if val := reflect.ValueOf(v); val.Kind() == reflect.Pointer && !val.IsNil() && val.Elem().Kind() == reflect.Struct {
		bindTagged(r, val.Elem())
	}
	return decodeBody(r, v)
}

func bindTagged(r *http.Request, val reflect.Value) {
	query := r.URL.Query()
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanSet() {
			continue
		}
		tag := typ.Field(i).Tag
		if name := tag.Get("path"); name != "" {
			setField(field, chi.URLParam(r, name))
		}
		if name := tag.Get("form"); name != "" {
			setField(field, query.Get(name))
		}
	}
}

// decodeBody reads a JSON body when there is one. An empty body is not an
// error.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// setField converts a path or query value into the string, int or bool
// fields request structs use. Empty and malformed values leave the field
// untouched.
func setField(field reflect.Value, value string) {
	if value == "" {
		return
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int32, reflect.Int64:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	}
}

// PathVar is chi.URLParam.
func PathVar(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// QueryInt reads an integer query value, falling back to def when it is
// missing or not a number.
func QueryInt(r *http.Request, name string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil {
		return n
	}
	return def
}

func QueryString(r *http.Request, name, def string) string {
	if v := r.URL.Query().Get(name); v != "" {
		return v
	}
	return def
}

func OkJSON(w http.ResponseWriter, v any) {
	WriteJSON(w, http.StatusOK, v)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error writes err as a 400 response.
func Error(w http.ResponseWriter, err error) {
	ErrorWithCode(w, http.StatusBadRequest, err.Error())
}

func ErrorWithCode(w http.ResponseWriter, code int, message string) {
	WriteJSON(w, code, ErrorResponse{Code: code, Message: message})
}
