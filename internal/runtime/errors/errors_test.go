package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrConfigRequired", ErrConfigRequired, "ssoflow: configuration is required"},
		{"ErrLoggerRequired", ErrLoggerRequired, "ssoflow: logger is required"},
		{"ErrRegistrySealed", ErrRegistrySealed, "ssoflow: registry is sealed"},
		{"ErrFactoryRequired", ErrFactoryRequired, "ssoflow: service factory is required"},
		{"ErrHandlerRequired", ErrHandlerRequired, "ssoflow: handler invoker is required"},
		{"ErrParseNotImplemented", ErrParseNotImplemented, "ssoflow: parse not implemented"},
		{"ErrBuildNotImplemented", ErrBuildNotImplemented, "ssoflow: build not implemented"},
		{"ErrEmptyProtocolPath", ErrEmptyProtocolPath, "ssoflow: protocol path cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	want := "ssoflow: invalid configuration: invalid port"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if unwrapped := err.Unwrap(); unwrapped != inner {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, inner)
	}
}

func TestDeclarationErrorUnwrapsJoinedCauses(t *testing.T) {
	err := &DeclarationError{
		Component: "login.Service",
		Err: errors.Join(
			&UnknownAttributeError{Key: "comand", Valid: []string{"command"}},
			&MissingRequiredAttributeError{Attribute: "command"},
		),
	}

	var missing *MissingRequiredAttributeError
	if !errors.As(err, &missing) {
		t.Fatal("expected MissingRequiredAttributeError in chain")
	}
	if missing.Attribute != "command" {
		t.Fatalf("unexpected attribute %q", missing.Attribute)
	}

	var unknown *UnknownAttributeError
	if !errors.As(err, &unknown) || unknown.Key != "comand" {
		t.Fatalf("expected UnknownAttributeError for comand, got %v", unknown)
	}
}

func TestStructuredMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "unknown attribute",
			err:  &UnknownAttributeError{Key: "timeout", Valid: []string{"command", "disable_log"}},
			want: `unknown attribute "timeout"; valid attributes: command, disable_log`,
		},
		{
			name: "invalid variant with suggestion",
			err:  &InvalidVariantError{Kind: "request_type", Given: "D2Aut", Valid: []string{"D2Auth", "Simple"}, Suggestion: "D2Auth"},
			want: `invalid request_type "D2Aut"; valid variants: D2Auth, Simple (did you mean "D2Auth"?)`,
		},
		{
			name: "invalid shape",
			err:  &InvalidShapeError{Type: "pkg.Alias", Kind: "int"},
			want: "pkg.Alias must be a struct with named fields, got int",
		},
		{
			name: "service not found",
			err:  &ServiceNotFoundError{Command: "unknown.cmd"},
			want: "ssoflow: service not found: unknown.cmd",
		},
		{
			name: "duplicate command",
			err:  &DuplicateCommandError{Command: "test.echo"},
			want: "ssoflow: duplicate command registration: test.echo",
		},
		{
			name: "invalid attribute value",
			err:  &InvalidAttributeValueError{Key: "disable_log", Want: "a bool", Got: "yes"},
			want: `attribute "disable_log" must be a bool, got string`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandlerErrorUnwrap(t *testing.T) {
	boom := errors.New("boom")
	err := fmt.Errorf("dispatch: %w", &HandlerError{Handler: "h1", EventType: "EventX", Err: boom})

	if !errors.Is(err, boom) {
		t.Fatal("expected handler error to unwrap to cause")
	}
	var herr *HandlerError
	if !errors.As(err, &herr) || herr.Handler != "h1" {
		t.Fatalf("expected HandlerError for h1, got %v", herr)
	}
}
