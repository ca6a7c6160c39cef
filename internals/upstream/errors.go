package upstream

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// Kind classifies an upstream failure the way callers need to react to it.
type Kind string

const (
	KindAuthentication Kind = "authentication" // missing or expired token → login
	KindAuthorization  Kind = "authorization"  // 403 on a sub-resource → banner
	KindValidation     Kind = "validation"     // 400/422 with field or general message
	KindNotFound       Kind = "not_found"
	KindDomain         Kind = "domain" // 409 and other terminal domain states
	KindNetwork        Kind = "network"
	KindTimeout        Kind = "timeout"
	KindServer         Kind = "server"
)

// Error is the normalized form of every failure returned by Client.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, upstream.ErrAuthentication).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Status == 0 && t.Message == "" && t.Kind == e.Kind
}

var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrNetwork        = &Error{Kind: KindNetwork}
	ErrTimeout        = &Error{Kind: KindTimeout}
)

// KindOf returns the Kind of err, or "" when err is not an upstream error.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ""
}

// MessageOf returns the user-facing message carried by err, or def.
func MessageOf(err error, def string) string {
	var ue *Error
	if errors.As(err, &ue) && strings.TrimSpace(ue.Message) != "" {
		return ue.Message
	}
	return def
}

func kindForStatus(status int) Kind {
	switch {
	case status == 401:
		return KindAuthentication
	case status == 403:
		return KindAuthorization
	case status == 404:
		return KindNotFound
	case status == 400 || status == 422:
		return KindValidation
	case status == 409 || status == 402:
		return KindDomain
	case status == 408 || status == 504:
		return KindTimeout
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

var defaultMessages = map[Kind]string{
	KindAuthentication: "Authentication required",
	KindAuthorization:  "You do not have permission to perform this action",
	KindValidation:     "Invalid request",
	KindNotFound:       "Not found",
	KindDomain:         "Request could not be completed",
	KindServer:         "Failed, try again",
	KindTimeout:        "Request timed out, try again",
}

// normalizeError reads DRF-shaped error payloads:
// {"detail": "..."}, {"non_field_errors": [...]}, {"field": ["msg", ...]}, or plain text.
func normalizeError(status int, body []byte) *Error {
	e := &Error{Kind: kindForStatus(status), Status: status}

	var payload map[string]any
	if len(body) > 0 && sonic.Unmarshal(body, &payload) == nil {
		if d, ok := payload["detail"].(string); ok {
			e.Message = d
		} else if m, ok := payload["message"].(string); ok {
			e.Message = m
		} else if m, ok := payload["error"].(string); ok {
			e.Message = m
		}
		e.Fields = fieldErrors(payload)
		if e.Message == "" {
			if nfe, ok := e.Fields["non_field_errors"]; ok && len(nfe) > 0 {
				e.Message = nfe[0]
			} else if first := firstField(e.Fields); first != "" {
				e.Message = first
			}
		}
	} else if s := strings.TrimSpace(string(body)); s != "" && len(s) < 200 && !strings.HasPrefix(s, "<") {
		e.Message = s
	}

	if e.Message == "" {
		e.Message = defaultMessages[e.Kind]
	}
	return e
}

func fieldErrors(payload map[string]any) map[string][]string {
	out := map[string][]string{}
	for k, v := range payload {
		switch k {
		case "detail", "message", "error", "code", "status":
			continue
		}
		switch t := v.(type) {
		case string:
			out[k] = []string{t}
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok {
					out[k] = append(out[k], s)
				}
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func firstField(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(fields[k]) > 0 {
			return k + ": " + fields[k][0]
		}
	}
	return ""
}
