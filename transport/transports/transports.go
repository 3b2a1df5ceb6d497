// Package transports imports every built-in event bus transport for
// registration with the default registry.
package transports

import (
	_ "github.com/drblury/ssoflow/transport/channel"
	_ "github.com/drblury/ssoflow/transport/http"
	_ "github.com/drblury/ssoflow/transport/io"
	_ "github.com/drblury/ssoflow/transport/jetstream"
	_ "github.com/drblury/ssoflow/transport/kafka"
	_ "github.com/drblury/ssoflow/transport/nats"
	_ "github.com/drblury/ssoflow/transport/rabbitmq"
)
