package apimodel

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
)

type ErrorMessage struct {
	ErrStatusCode int    `json:"status_code"`
	ErrMessage    string `json:"message"`
}

func (e *ErrorMessage) StatusCode() int {
	return e.ErrStatusCode
}

func (e *ErrorMessage) Title() string {
	return e.ErrMessage
}

func (e *ErrorMessage) Error() string {
	if e.ErrMessage != "" {
		return strconv.Itoa(e.ErrStatusCode) + ":" + e.ErrMessage
	}
	return strconv.Itoa(e.ErrStatusCode)
}

func (v ErrorMessage) SendError(w http.ResponseWriter) {
	if v.ErrMessage == "" {
		v.ErrMessage = DefaultMessage(v.ErrStatusCode)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(v.ErrStatusCode)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		logrus.Errorf("error when encoding error: %v", err)
	}
}

// DefaultMessage is the message sent when a handler gives only a status code
func DefaultMessage(status int) string {
	switch status {
	case http.StatusOK:
		return "Ok"
	case http.StatusNotFound:
		return "Page not found"
	case http.StatusMethodNotAllowed:
		return "Method not allowed"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusTooManyRequests:
		return "Too many requests"
	case http.StatusServiceUnavailable:
		return "Service unavailable"
	case http.StatusBadRequest:
		return "Bad request"
	default:
		return "Internal error"
	}
}

//errors message
var WrongParametersErrorMessage = ErrorMessage{
	ErrStatusCode: http.StatusBadRequest,
	ErrMessage:    "unable to parse parameters",
}

var NoFrameErrorMessage = ErrorMessage{
	ErrStatusCode: http.StatusServiceUnavailable,
	ErrMessage:    "no frame committed yet",
}
