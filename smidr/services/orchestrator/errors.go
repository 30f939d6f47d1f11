package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"smidr/smidr/services/provider"
)

// Code is the machine-readable error identifier sent to callers.
type Code string

const (
	CodeUnauthorized            Code = "unauthorized"
	CodeMissingMessage          Code = "missing_message"
	CodeModeDisabled            Code = "mode_disabled"
	CodeConfigurationMissing    Code = "configuration_missing"
	CodeAssistantNotConfigured  Code = "assistant_not_configured"
	CodeModelNotConfigured      Code = "model_not_configured"
	CodeThreadCreationFailed    Code = "thread_creation_failed"
	CodeMessageFailed           Code = "message_failed"
	CodeRunStartFailed          Code = "run_start_failed"
	CodeNotFound                Code = "not_found"
	CodeUpstreamInvalidResponse Code = "upstream_invalid_response"
	CodeUpstreamUnavailable     Code = "upstream_unavailable"
	CodeUpstreamError           Code = "upstream_error"
	CodeChatFailed              Code = "chat_failed"
)

// Error is the only error type returned by Orchestrator methods.
type Error struct {
	Code   Code
	Status int
	// Details carries the provider's error body, or the transport error text.
	Details json.RawMessage
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, status int, err error) *Error {
	return &Error{Code: code, Status: status, Err: err}
}

// upstream wraps a provider failure under code, keeping the provider body.
func upstream(code Code, err error) *Error {
	e := &Error{Code: code, Status: http.StatusBadGateway, Err: err}
	e.Details = details(err)
	return e
}

// classify maps a provider error seen while reading run state.
func classify(err error) *Error {
	var apiErr *provider.APIError
	var protoErr *provider.ProtocolError
	var transportErr *provider.TransportError
	switch {
	case errors.As(err, &protoErr):
		return upstream(CodeUpstreamInvalidResponse, err)
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		e := upstream(CodeNotFound, err)
		e.Status = http.StatusNotFound
		return e
	case errors.As(err, &transportErr):
		return upstream(CodeUpstreamUnavailable, err)
	default:
		return upstream(CodeUpstreamError, err)
	}
}

func details(err error) json.RawMessage {
	var apiErr *provider.APIError
	var protoErr *provider.ProtocolError
	switch {
	case errors.As(err, &apiErr) && len(apiErr.Body) > 0:
		return apiErr.Body
	case errors.As(err, &protoErr) && len(protoErr.Body) > 0:
		return protoErr.Body
	}
	msg, _ := json.Marshal(err.Error())
	return msg
}
