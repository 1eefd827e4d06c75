package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/localgen/internal/envvar"
)

// Environment is the runtime environment the process is running in.
type Environment string

const (
	// Development enables human friendly console output.
	Development Environment = "development"

	// Production enables structured JSON output.
	Production Environment = "production"

	// Test is used by the test suites.
	Test Environment = "test"
)

// FromEnv reads the environment from LOCALGEN_ENV, defaulting to Development.
func FromEnv() Environment {
	return Parse(os.Getenv(envvar.LocalgenEnv))
}

// Parse converts a string into an Environment. Unknown values map to Development.
func Parse(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "production":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

// IsProduction reports whether e is Production.
func (e Environment) IsProduction() bool {
	return e == Production
}
