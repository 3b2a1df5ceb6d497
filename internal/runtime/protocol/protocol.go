// Package protocol models the client platform a session speaks as, and the
// bit masks event subscriptions use to filter on it.
package protocol

import (
	"fmt"
	"strings"

	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
	"github.com/drblury/ssoflow/internal/runtime/suggest"
)

// Protocol is one concrete platform variant. Every variant owns exactly one bit.
type Protocol uint8

const (
	None         Protocol = 0
	Windows      Protocol = 1 << 0
	MacOs        Protocol = 1 << 1
	Linux        Protocol = 1 << 2
	AndroidPhone Protocol = 1 << 3
	AndroidPad   Protocol = 1 << 4
	AndroidWatch Protocol = 1 << 5
)

// Default is the platform used when configuration does not name one.
const Default = Linux

// Mask is a set of platforms. A subscription matches a platform when their bits intersect.
type Mask uint8

// Named groups are plain unions of their members.
const (
	PC      = Mask(Windows | MacOs | Linux)
	ANDROID = Mask(AndroidPhone | AndroidPad | AndroidWatch)
	ALL     = PC | ANDROID
)

var protocolNames = []struct {
	p    Protocol
	name string
}{
	{Windows, "Windows"},
	{MacOs, "MacOs"},
	{Linux, "Linux"},
	{AndroidPhone, "AndroidPhone"},
	{AndroidPad, "AndroidPad"},
	{AndroidWatch, "AndroidWatch"},
}

var groupNames = []struct {
	m    Mask
	name string
}{
	{ALL, "ALL"},
	{PC, "PC"},
	{ANDROID, "ANDROID"},
}

// BitFor returns the fixed bit owned by p.
func BitFor(p Protocol) Mask {
	return Mask(p)
}

// IsMatch reports whether a subscription mask applies to the active platform.
func IsMatch(active Protocol, mask Mask) bool {
	return BitFor(active)&mask != 0
}

// Matches reports whether p is part of mask.
func (p Protocol) Matches(mask Mask) bool {
	return IsMatch(p, mask)
}

func (p Protocol) IsDesktop() bool {
	return p.Matches(PC)
}

func (p Protocol) IsAndroid() bool {
	return p.Matches(ANDROID)
}

// Valid reports whether p is exactly one known platform.
func (p Protocol) Valid() bool {
	for _, entry := range protocolNames {
		if entry.p == p {
			return true
		}
	}
	return false
}

func (p Protocol) String() string {
	for _, entry := range protocolNames {
		if entry.p == p {
			return entry.name
		}
	}
	if p == None {
		return "None"
	}
	return fmt.Sprintf("Protocol(%d)", uint8(p))
}

// MarshalText lets configuration files carry platform names.
func (p Protocol) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("ssoflow: cannot marshal protocol %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Protocol) UnmarshalText(text []byte) error {
	parsed, err := ParseProtocol(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Decode satisfies envconfig.Decoder.
func (p *Protocol) Decode(value string) error {
	return p.UnmarshalText([]byte(value))
}

// ParseProtocol resolves a single platform name, case-insensitively.
func ParseProtocol(name string) (Protocol, error) {
	trimmed := strings.TrimSpace(name)
	for _, entry := range protocolNames {
		if strings.EqualFold(entry.name, trimmed) {
			return entry.p, nil
		}
	}
	return None, &errspkg.InvalidProtocolPathError{
		Path:       name,
		Suggestion: suggest.Closest(trimmed, platformNames()),
	}
}

// Protocols lists every concrete platform in bit order.
func Protocols() []Protocol {
	out := make([]Protocol, 0, len(protocolNames))
	for _, entry := range protocolNames {
		out = append(out, entry.p)
	}
	return out
}

// Members returns the platforms contained in m, in bit order.
func (m Mask) Members() []Protocol {
	var out []Protocol
	for _, entry := range protocolNames {
		if m&BitFor(entry.p) != 0 {
			out = append(out, entry.p)
		}
	}
	return out
}

// Contains reports whether p is part of m.
func (m Mask) Contains(p Protocol) bool {
	return IsMatch(p, m)
}

// Valid reports whether m is non-empty and uses only known bits.
func (m Mask) Valid() bool {
	return m != 0 && m&^ALL == 0
}

func (m Mask) String() string {
	for _, group := range groupNames {
		if group.m == m {
			return group.name
		}
	}
	if m == 0 {
		return "None"
	}
	members := m.Members()
	names := make([]string, 0, len(members))
	for _, p := range members {
		names = append(names, p.String())
	}
	if m&^ALL != 0 {
		names = append(names, fmt.Sprintf("0x%02x", uint8(m&^ALL)))
	}
	return strings.Join(names, "|")
}

// pathQualifiers are the prefixes accepted in front of a platform or group name.
var pathQualifiers = []string{"Protocols", "Protocol", "protocol"}

// ResolvePath resolves a platform or group path such as "PC", "Protocols::PC"
// or "protocol.AndroidPhone" to its mask. Names are case-sensitive.
func ResolvePath(path string) (Mask, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return 0, errspkg.ErrEmptyProtocolPath
	}

	segments := splitPath(trimmed)
	name := segments[len(segments)-1]
	switch {
	case len(segments) > 2:
		return 0, invalidPath(path, name)
	case len(segments) == 2 && !isQualifier(segments[0]):
		return 0, invalidPath(path, name)
	}

	for _, group := range groupNames {
		if group.name == name {
			return group.m, nil
		}
	}
	for _, entry := range protocolNames {
		if entry.name == name {
			return BitFor(entry.p), nil
		}
	}
	return 0, invalidPath(path, name)
}

// PathNames lists every name ResolvePath accepts, groups first.
func PathNames() []string {
	names := make([]string, 0, len(groupNames)+len(protocolNames))
	for _, group := range groupNames {
		names = append(names, group.name)
	}
	return append(names, platformNames()...)
}

func platformNames() []string {
	names := make([]string, 0, len(protocolNames))
	for _, entry := range protocolNames {
		names = append(names, entry.name)
	}
	return names
}

func splitPath(path string) []string {
	if strings.Contains(path, "::") {
		return strings.Split(path, "::")
	}
	return strings.Split(path, ".")
}

func isQualifier(segment string) bool {
	for _, q := range pathQualifiers {
		if segment == q {
			return true
		}
	}
	return false
}

func invalidPath(path, name string) error {
	err := &errspkg.InvalidProtocolPathError{Path: path}
	if name != "" {
		err.Suggestion = suggest.Closest(name, PathNames())
	}
	return err
}
