package upstream

import (
	"bytes"
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Page is the single shape every upstream list is normalized into.
type Page[T any] struct {
	Items      []T
	Count      int
	TotalPages int
	HasNext    bool
}

type listEnvelope struct {
	Results    json.RawMessage `json:"results"`
	Data       json.RawMessage `json:"data"`
	Questions  json.RawMessage `json:"questions"`
	Count      *int            `json:"count"`
	TotalPages *int            `json:"total_pages"`
	Next       *string         `json:"next"`
}

// DecodeList accepts {results: [...]}, {data: [...]}, {data: {results: [...]}},
// {questions: [...]}, a bare array, or an empty/null body. Anything else is an error.
func DecodeList[T any](body []byte) (Page[T], error) {
	return decodeList[T](body, 0)
}

func decodeList[T any](body []byte, depth int) (Page[T], error) {
	var p Page[T]
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		p.Items = []T{}
		return p, nil
	}

	if trimmed[0] == '[' {
		if err := sonic.Unmarshal(trimmed, &p.Items); err != nil {
			return p, &Error{Kind: KindServer, Message: "unexpected list response", Err: err}
		}
		p.Count = len(p.Items)
		return p, nil
	}

	var env listEnvelope
	if err := sonic.Unmarshal(trimmed, &env); err != nil {
		return p, &Error{Kind: KindServer, Message: "unexpected list response", Err: err}
	}

	raw := firstNonEmpty(env.Results, env.Questions, env.Data)
	switch {
	case raw == nil:
		p.Items = []T{}
	case depth == 0 && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")):
		inner, err := decodeList[T](raw, depth+1)
		if err != nil {
			return p, err
		}
		p = inner
	default:
		inner, err := decodeList[T](raw, depth+1)
		if err != nil {
			return p, err
		}
		p.Items = inner.Items
	}

	if p.Items == nil {
		p.Items = []T{}
	}
	if env.Count != nil {
		p.Count = *env.Count
	} else if p.Count == 0 {
		p.Count = len(p.Items)
	}
	if env.TotalPages != nil {
		p.TotalPages = *env.TotalPages
	}
	if env.Next != nil && *env.Next != "" {
		p.HasNext = true
	}
	return p, nil
}

func firstNonEmpty(candidates ...json.RawMessage) json.RawMessage {
	for _, c := range candidates {
		t := bytes.TrimSpace(c)
		if len(t) > 0 && !bytes.Equal(t, []byte("null")) {
			return t
		}
	}
	return nil
}
