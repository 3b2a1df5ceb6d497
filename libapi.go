package ssoflow

import (
	"context"

	runtimepkg "github.com/drblury/ssoflow/internal/runtime"
	configpkg "github.com/drblury/ssoflow/internal/runtime/config"
	"github.com/drblury/ssoflow/internal/runtime/declare"
	"github.com/drblury/ssoflow/internal/runtime/dispatch"
	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
	"github.com/drblury/ssoflow/internal/runtime/event"
	idspkg "github.com/drblury/ssoflow/internal/runtime/ids"
	"github.com/drblury/ssoflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/ssoflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/ssoflow/internal/runtime/metadata"
	"github.com/drblury/ssoflow/internal/runtime/protocol"
	"github.com/drblury/ssoflow/internal/runtime/registry"
	"github.com/drblury/ssoflow/internal/runtime/service"
	"github.com/drblury/ssoflow/internal/runtime/session"
	transportpkg "github.com/drblury/ssoflow/transport"
)

type (
	Config                 = configpkg.Config
	Dispatcher             = runtimepkg.Dispatcher
	DispatcherDependencies = runtimepkg.DispatcherDependencies
	EventBus               = runtimepkg.EventBus
	EventBusDependencies   = runtimepkg.EventBusDependencies
	Delivery[E any]        = runtimepkg.Delivery[E]
	ServiceInfo            = runtimepkg.ServiceInfo
	SubscriptionInfo       = runtimepkg.SubscriptionInfo
	DispatchResult         = dispatch.Result
	DispatchStats          = runtimepkg.DispatchStats
	ProcessUsage           = runtimepkg.ProcessUsage

	Attributes        = declare.Attributes
	Registry          = registry.Registry
	ServiceDescriptor = registry.ServiceDescriptor
	EventSubscription = registry.EventSubscription

	Service         = service.Service
	ServiceBase     = service.Base
	ServiceMetadata = service.Metadata
	RequestType     = service.RequestType
	EncryptType     = service.EncryptType
	Packet          = service.Packet

	Protocol = protocol.Protocol
	Mask     = protocol.Mask

	EventType    = event.Type
	EventMessage = event.Message

	Session       = session.Context
	SessionOption = session.Option
	Poster        = session.Poster

	Metadata      = metadatapkg.Metadata
	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Dispatch lifecycle hooks
	DispatchHooks   = runtimepkg.DispatchHooks
	DispatchContext = runtimepkg.DispatchContext
	DispatchMetrics = runtimepkg.DispatchMetrics

	ConfigValidationError         = errspkg.ConfigValidationError
	DeclarationError              = errspkg.DeclarationError
	MissingRequiredAttributeError = errspkg.MissingRequiredAttributeError
	UnknownAttributeError         = errspkg.UnknownAttributeError
	InvalidVariantError           = errspkg.InvalidVariantError
	InvalidAttributeValueError    = errspkg.InvalidAttributeValueError
	InvalidShapeError             = errspkg.InvalidShapeError
	InvalidEventTypeError         = errspkg.InvalidEventTypeError
	InvalidProtocolPathError      = errspkg.InvalidProtocolPathError
	ServiceNotFoundError          = errspkg.ServiceNotFoundError
	DuplicateCommandError         = errspkg.DuplicateCommandError
	HandlerError                  = errspkg.HandlerError

	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

// Platforms and platform groups.
const (
	ProtocolNone = protocol.None
	Windows      = protocol.Windows
	MacOs        = protocol.MacOs
	Linux        = protocol.Linux
	AndroidPhone = protocol.AndroidPhone
	AndroidPad   = protocol.AndroidPad
	AndroidWatch = protocol.AndroidWatch

	PC      = protocol.PC
	ANDROID = protocol.ANDROID
	ALL     = protocol.ALL
)

// Event bus transports registered by ssoflow.
const (
	TransportChannel   = configpkg.TransportChannel
	TransportNATS      = configpkg.TransportNATS
	TransportJetStream = configpkg.TransportJetStream
	TransportKafka     = configpkg.TransportKafka
	TransportRabbitMQ  = configpkg.TransportRabbitMQ
	TransportHTTP      = configpkg.TransportHTTP
	TransportIO        = configpkg.TransportIO
)

// Request and encrypt types.
const (
	RequestTypeNone = service.RequestTypeNone
	D2Auth          = service.D2Auth
	Simple          = service.Simple

	EncryptTypeNone = service.EncryptTypeNone
	EncryptEmpty    = service.EncryptEmpty
	EncryptD2Key    = service.EncryptD2Key
)

// Declaration attribute keys.
const (
	AttrCommand     = declare.AttrCommand
	AttrRequestType = declare.AttrRequestType
	AttrEncryptType = declare.AttrEncryptType
	AttrDisableLog  = declare.AttrDisableLog
	AttrProtocol    = declare.AttrProtocol
)

// Metadata keys set by the dispatcher and the event bus.
const (
	MetadataKeyEventType   = metadatapkg.KeyEventType
	MetadataKeyEventID     = metadatapkg.KeyEventID
	MetadataKeyDispatchID  = metadatapkg.KeyDispatchID
	MetadataKeyCommand     = metadatapkg.KeyCommand
	MetadataKeyProtocol    = metadatapkg.KeyProtocol
	MetadataKeyContentType = metadatapkg.KeyContentType
)

var (
	NewDispatcher  = runtimepkg.NewDispatcher
	NewEventBus    = runtimepkg.NewEventBus
	TopicFor       = runtimepkg.TopicFor
	DefaultConfig  = configpkg.Default
	LoadConfig     = configpkg.Load
	ConfigFromEnv  = configpkg.FromEnv
	ValidateConfig = configpkg.ValidateConfig

	DefaultRegistry = registry.DefaultRegistry
	NewRegistry     = registry.NewRegistry

	NewSession      = session.New
	WithLogger      = session.WithLogger
	WithMetadata    = session.WithMetadata
	WithPoster      = session.WithPoster
	NewServiceMeta  = service.NewMetadata
	BitFor          = protocol.BitFor
	IsMatch         = protocol.IsMatch
	ResolvePath     = protocol.ResolvePath
	ParseProtocol   = protocol.ParseProtocol
	ParseRequest    = service.ParseRequestType
	ParseEncryption = service.ParseEncryptType

	// Dispatch lifecycle hooks
	LoggingHooks  = runtimepkg.LoggingHooks
	CountingHooks = runtimepkg.CountingHooks
	AlertingHooks = runtimepkg.AlertingHooks

	NewDispatchMetrics = runtimepkg.NewDispatchMetrics

	NewLogger            = loggingpkg.New
	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewDiscardLogger     = loggingpkg.NewDiscardLogger

	NewMetadata = metadatapkg.New
	NewEventID  = idspkg.New

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode

	// Modular transport registry.
	// Import individual transports via: _ "github.com/drblury/ssoflow/transport/nats"
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build

	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrRegistrySealed      = errspkg.ErrRegistrySealed
	ErrFactoryRequired     = errspkg.ErrFactoryRequired
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrInvalidEventPayload = errspkg.ErrInvalidEventPayload
	ErrParseNotImplemented = errspkg.ErrParseNotImplemented
	ErrBuildNotImplemented = errspkg.ErrBuildNotImplemented
	ErrPosterRequired      = errspkg.ErrPosterRequired
	ErrEventBusClosed      = errspkg.ErrEventBusClosed
	ErrEmptyProtocolPath   = errspkg.ErrEmptyProtocolPath
)

// DeclareService queues the declaration of service T on reg, or on the
// default registry when reg is nil. Attributes are validated when the first
// dispatcher loads the registry.
func DeclareService[T any, PT declare.ServiceType[T]](reg *Registry, attrs Attributes) error {
	return declare.Service[T, PT](reg, attrs)
}

// MustDeclareService is DeclareService for init functions.
func MustDeclareService[T any, PT declare.ServiceType[T]](reg *Registry, attrs Attributes) {
	declare.MustService[T, PT](reg, attrs)
}

// DeclareEvent subscribes handler H to events of type E.
func DeclareEvent[E, H any, PH declare.HandlerType[H, E]](reg *Registry, attrs Attributes) error {
	return declare.Event[E, H, PH](reg, attrs)
}

func MustDeclareEvent[E, H any, PH declare.HandlerType[H, E]](reg *Registry, attrs Attributes) {
	declare.MustEvent[E, H, PH](reg, attrs)
}

// NewEvent wraps payload into a message tagged with the type of E.
func NewEvent[E any](payload E) EventMessage {
	return event.New(payload)
}

// EventAs extracts the payload of msg when it was built for E.
func EventAs[E any](msg EventMessage) (E, bool) {
	return event.As[E](msg)
}

func TypeOf[E any]() EventType {
	return event.TypeOf[E]()
}

// Subscribe streams events of type E relayed by bus until ctx is done.
func Subscribe[E any](ctx context.Context, bus *EventBus) (<-chan Delivery[E], error) {
	return runtimepkg.Subscribe[E](ctx, bus)
}
