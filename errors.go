package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

var (
	ErrNotFound         = errors.New("object not found")
	ErrEnumeration      = errors.New("unable to enumerate source")
	ErrUnknownWorkspace = errors.New("unknown workspace")
	ErrSyncLocked       = errors.New("Unable to acquire sync lock")
)

const codeResourceDoesNotExist = "RESOURCE_DOES_NOT_EXIST"

// APIError is the error body returned by the workspace and GitHub APIs.
type APIError struct {
	StatusCode int    `json:"-"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.ErrorCode == "" {
		return fmt.Sprintf("api error: %d - %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: %d %s - %s", e.StatusCode, e.ErrorCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	if target != ErrNotFound {
		return false
	}
	return e.StatusCode == http.StatusNotFound || e.ErrorCode == codeResourceDoesNotExist
}

// handleAPIError turns a req round trip into a single error value.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	// an undecodable error body still carries a usable status code
	if requestErr != nil && (resp == nil || resp.Response == nil || !resp.IsErrorState()) {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if e, ok := resp.ErrorResult().(*APIError); ok && e != nil {
			apiErr.ErrorCode = e.ErrorCode
			apiErr.Message = e.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = resp.String()
		}
		return fmt.Errorf("%s: %w", operation, apiErr)
	}

	return nil
}
