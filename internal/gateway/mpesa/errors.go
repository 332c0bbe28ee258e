package mpesa

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ゲートウェイが返したエラー。Messageはそのまま呼び出し元へ返す。
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("mpesa api error (%d): %s", e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("mpesa api error (%d %s): %s", e.HTTPStatus, e.Code, e.Message)
}

func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	ok := errors.As(err, &ae)
	return ae, ok
}

// {"requestId":"...","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid Amount"}
type errorBody struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func newAPIError(status int, body []byte) *APIError {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.ErrorMessage != "" {
		return &APIError{HTTPStatus: status, Code: eb.ErrorCode, Message: eb.ErrorMessage}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{HTTPStatus: status, Message: msg}
}
