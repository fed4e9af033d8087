package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/formcoach/formcheck/internal/provider"
)

// Kind is the closed set of failure classes the pipeline reports.
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindValidation
	KindUpstream
	KindProtocol
	KindProcessingFailed
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindValidation:
		return "ValidationError"
	case KindUpstream:
		return "UpstreamError"
	case KindProtocol:
		return "ProtocolError"
	case KindProcessingFailed:
		return "ProcessingFailed"
	case KindTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Code is the machine-readable value exposed to API callers.
func (k Kind) Code() string {
	switch k {
	case KindConfiguration:
		return "CONFIGURATION_ERROR"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindUpstream:
		return "UPSTREAM_ERROR"
	case KindProtocol:
		return "PROTOCOL_ERROR"
	case KindProcessingFailed:
		return "PROCESSING_FAILED"
	case KindTimeout:
		return "TIMEOUT"
	default:
		return "INTERNAL_ERROR"
	}
}

// Validation reasons.
const (
	ReasonMissingMedia     = "missing media"
	ReasonPayloadTooLarge  = "payload too large"
	ReasonUnsupportedSize  = "unsupported size"
	ReasonCapability       = "capability unsupported"
	ReasonTokenLimit       = "token limit exceeded"
	ReasonClientRejected   = "client error"
	ReasonUnavailable      = "upstream unavailable"
	ReasonMissingJobID     = "missing job id"
	ReasonMissingMediaID   = "missing media id"
	ReasonMissingWorkspace = "missing workspace id"
	ReasonMalformed        = "malformed response"
)

// User-facing messages. Each is one short actionable sentence.
const (
	MsgConfiguration    = "Video analysis is not configured on this server."
	MsgMissingMedia     = "No video was provided. Attach a video file or send an absolute http(s) video URL."
	MsgCapability       = "The analysis workspace does not support video understanding. Please contact support."
	MsgTokenLimit       = "The requested analysis is too long for this video. Try a shorter clip."
	MsgClientRejected   = "The video analysis service rejected this request. Check the video and try again."
	MsgUnavailable      = "The video analysis service is temporarily unavailable. Please try again later."
	MsgProcessingFailed = "The video could not be processed. Try a shorter or clearer clip."
	MsgTimeout          = "The video took too long to process. Try a shorter video."
)

// Provider error codes with dedicated messages.
var (
	capabilityCodes = map[string]bool{
		"index_not_supported_for_generate": true,
		"workspace_capability_unsupported": true,
		"capability_not_supported":         true,
	}
	tokenLimitCodes = map[string]bool{
		"token_limit_exceeded":    true,
		"max_tokens_exceeded":     true,
		"context_length_exceeded": true,
	}
)

const maxBodyExcerpt = 512

// Error is the single error type the pipeline returns. Message is safe to
// show to end users; Status and Body are diagnostics for logs only.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Op      string
	Status  int
	Code    string
	Body    string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString("(")
	b.WriteString(e.Reason)
	b.WriteString(")")
	if e.Op != "" {
		fmt.Fprintf(&b, " op=%s", e.Op)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " code=%s", e.Code)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func validationError(reason, message string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: message}
}

func configurationError(reason string, err error) *Error {
	return &Error{Kind: KindConfiguration, Reason: reason, Message: MsgConfiguration, Err: err}
}

func protocolError(op, reason string, err error) *Error {
	return &Error{Kind: KindProtocol, Reason: reason, Message: MsgUnavailable, Op: op, Err: err}
}

// Classify maps a failed provider response to the taxonomy. An embedded
// error code takes precedence over the HTTP status.
func Classify(op string, status int, body string) *Error {
	e := &Error{
		Kind:   KindUpstream,
		Op:     op,
		Status: status,
		Code:   errorCode(body),
		Body:   excerpt(body),
	}

	switch {
	case capabilityCodes[e.Code]:
		e.Reason, e.Message = ReasonCapability, MsgCapability
	case tokenLimitCodes[e.Code]:
		e.Reason, e.Message = ReasonTokenLimit, MsgTokenLimit
	case status >= 400 && status < 500:
		e.Reason, e.Message = ReasonClientRejected, MsgClientRejected
	default:
		e.Reason, e.Message = ReasonUnavailable, MsgUnavailable
	}
	return e
}

// ClassifyTransport maps a failed call with no usable HTTP response.
func ClassifyTransport(op string, err error) *Error {
	return &Error{
		Kind:    KindUpstream,
		Reason:  ReasonUnavailable,
		Message: MsgUnavailable,
		Op:      op,
		Err:     err,
	}
}

// classify routes any error returned by the provider client exactly once.
func classify(op string, err error) *Error {
	var already *Error
	if errors.As(err, &already) {
		return already
	}
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		e := Classify(op, apiErr.StatusCode, apiErr.Body)
		e.Err = err
		return e
	}
	if errors.Is(err, provider.ErrMalformedResponse) {
		return protocolError(op, ReasonMalformed, err)
	}
	return ClassifyTransport(op, err)
}

// errorCode extracts a machine-readable code from bodies shaped like
// {"code": ...}, {"error": {"code": ...}} or {"error": "code"}.
func errorCode(body string) string {
	var doc struct {
		Code  json.RawMessage `json:"code"`
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return ""
	}
	if c := rawString(doc.Code); c != "" {
		return c
	}
	if len(doc.Error) == 0 {
		return ""
	}
	var nested struct {
		Code json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(doc.Error, &nested); err == nil {
		if c := rawString(nested.Code); c != "" {
			return c
		}
	}
	if s := rawString(doc.Error); s != "" && !strings.ContainsAny(s, " \t") {
		return s
	}
	return ""
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func excerpt(body string) string {
	if len(body) <= maxBodyExcerpt {
		return body
	}
	return body[:maxBodyExcerpt] + "..."
}

// HTTPStatus maps an error to the inbound API status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindProcessingFailed:
		return http.StatusUnprocessableEntity
	case KindUpstream, KindProtocol:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
