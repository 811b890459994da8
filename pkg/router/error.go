package router

import (
	"encoding/json"
	"io"
	"net/http"
)

// Error is an API error that knows its status code and how to write itself.
type Error interface {
	error
	StatusCode() int
	Encode(w io.Writer) error
}

// JsonError is written as {"code": ..., "error": ...}.
type JsonError struct {
	Code int    `json:"code"`
	Err  string `json:"error"`
}

func NewJsonError(code int, err string) JsonError {
	return JsonError{
		Code: code,
		Err:  err,
	}
}

// StatusError returns an ErrorMapper answering with code and the message of
// err. The message of the matched error is used, never the wrapped chain, so
// internal context stays out of responses.
func StatusError(code int, err error) ErrorMapper {
	return func(error) Error {
		return NewJsonError(code, err.Error())
	}
}

func (e JsonError) StatusCode() int {
	return e.Code
}

func (e JsonError) Error() string {
	if e.Err == "" {
		return http.StatusText(e.Code)
	}
	return e.Err
}

func (e JsonError) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(e)
}
