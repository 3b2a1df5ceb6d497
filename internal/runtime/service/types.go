package service

import (
	"fmt"
	"strings"

	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
	"github.com/drblury/ssoflow/internal/runtime/suggest"
)

// RequestType selects how a request is framed. The zero value means the
// service did not declare one.
type RequestType uint8

const (
	RequestTypeNone RequestType = iota
	D2Auth
	Simple
)

var requestTypeNames = map[RequestType]string{
	D2Auth: "D2Auth",
	Simple: "Simple",
}

// RequestTypeVariants lists the declarable request types.
func RequestTypeVariants() []RequestType {
	return []RequestType{D2Auth, Simple}
}

func (r RequestType) String() string {
	if name, ok := requestTypeNames[r]; ok {
		return name
	}
	return "None"
}

// IsSet reports whether r names a declared variant.
func (r RequestType) IsSet() bool {
	_, ok := requestTypeNames[r]
	return ok
}

// ParseRequestType accepts "D2Auth", "RequestType::D2Auth" or "RequestType.D2Auth".
func ParseRequestType(name string) (RequestType, error) {
	bare := trimEnumPath(name, "RequestType")
	for _, v := range RequestTypeVariants() {
		if v.String() == bare {
			return v, nil
		}
	}
	return RequestTypeNone, invalidVariant("request_type", name, bare, variantNames(RequestTypeVariants()))
}

// EncryptType selects how a request body is encrypted. The zero value means
// the service did not declare one.
type EncryptType uint8

const (
	EncryptTypeNone EncryptType = iota
	EncryptEmpty
	EncryptD2Key
)

var encryptTypeNames = map[EncryptType]string{
	EncryptEmpty: "EncryptEmpty",
	EncryptD2Key: "EncryptD2Key",
}

// EncryptTypeVariants lists the declarable encrypt types.
func EncryptTypeVariants() []EncryptType {
	return []EncryptType{EncryptEmpty, EncryptD2Key}
}

func (e EncryptType) String() string {
	if name, ok := encryptTypeNames[e]; ok {
		return name
	}
	return "None"
}

func (e EncryptType) IsSet() bool {
	_, ok := encryptTypeNames[e]
	return ok
}

// ParseEncryptType accepts "EncryptD2Key", "EncryptType::EncryptD2Key" or
// "EncryptType.EncryptD2Key".
func ParseEncryptType(name string) (EncryptType, error) {
	bare := trimEnumPath(name, "EncryptType")
	for _, v := range EncryptTypeVariants() {
		if v.String() == bare {
			return v, nil
		}
	}
	return EncryptTypeNone, invalidVariant("encrypt_type", name, bare, variantNames(EncryptTypeVariants()))
}

func trimEnumPath(name, enum string) string {
	trimmed := strings.TrimSpace(name)
	for _, sep := range []string{"::", "."} {
		if rest, ok := strings.CutPrefix(trimmed, enum+sep); ok {
			return rest
		}
	}
	return trimmed
}

func variantNames[T fmt.Stringer](variants []T) []string {
	names := make([]string, 0, len(variants))
	for _, v := range variants {
		names = append(names, v.String())
	}
	return names
}

func invalidVariant(kind, given, bare string, valid []string) error {
	err := &errspkg.InvalidVariantError{Kind: kind, Given: given, Valid: valid}
	if bare != "" {
		err.Suggestion = suggest.Closest(bare, valid)
	}
	return err
}
