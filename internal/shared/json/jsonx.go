// Package jsonx routes persistence encoding through a single codec so the
// implementation can be swapped in one place.
package jsonx

import "github.com/goccy/go-json"

var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
)

// SyntaxError is the decode error surfaced for malformed documents.
type SyntaxError = json.SyntaxError
