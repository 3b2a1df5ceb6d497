// Package jsoncodec is the JSON codec shared by configuration files, the
// event bus and the inspector API.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

// api behaves like encoding/json, including HTML escaping and sorted map keys.
var api = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Encode writes v to w followed by a newline.
func Encode(w io.Writer, v any) error {
	return api.NewEncoder(w).Encode(v)
}

// Valid reports whether data is a syntactically valid JSON document.
func Valid(data []byte) bool {
	return api.Valid(data)
}
