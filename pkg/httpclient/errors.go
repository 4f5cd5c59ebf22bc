package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// ResponseError is a non-2xx answer from a downstream API.
type ResponseError struct {
	Service    string
	StatusCode int
	// Code is the downstream's machine-readable error code, when it sent one.
	Code    string
	Message string
	Body    []byte
}

func (e *ResponseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s returned status %d (%s): %s", e.Service, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Message)
}

// ClientError reports whether the downstream rejected the request itself.
func (e *ResponseError) ClientError() bool {
	return IsClientError(e.StatusCode)
}

// downstreamError covers both the flat {"message","code"} shape used by
// payment gateways and the nested {"error":{...}} shape of our own services.
type downstreamError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes resp.Body and returns a *ResponseError.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", service, resp.StatusCode, err)
	}

	out := &ResponseError{Service: service, StatusCode: resp.StatusCode, Body: body}

	var d downstreamError
	if json.Unmarshal(body, &d) == nil {
		out.Code, out.Message = d.Code, d.Message
		if d.Error != nil {
			out.Code, out.Message = d.Error.Code, d.Error.Message
		}
	}
	if out.Message == "" {
		out.Message = strings.TrimSpace(string(body))
	}
	if out.Message == "" {
		out.Message = http.StatusText(resp.StatusCode)
	}
	return out
}

// IsClientError reports whether status is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
