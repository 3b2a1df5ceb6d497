// Package all imports every bundled service so its declaration reaches the
// default registry.
package all

import (
	_ "github.com/drblury/ssoflow/services/login"
	_ "github.com/drblury/ssoflow/services/system"
)
