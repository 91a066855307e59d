package commons

import "strings"

// RuntimeEnvironment selects process-wide behavior (logging format, default
// tunables) the way the teacher's RapidaEnvironment selected service
// behavior.
type RuntimeEnvironment int

const (
	DEVELOPMENT RuntimeEnvironment = iota
	PRODUCTION
)

// Get returns the lowercase string form of the environment.
func (e RuntimeEnvironment) Get() string {
	if e == PRODUCTION {
		return "production"
	}
	return "development"
}

// FromEnvironmentStr parses an environment string, defaulting to
// DEVELOPMENT for anything unrecognized (including empty).
func FromEnvironmentStr(s string) RuntimeEnvironment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production":
		return PRODUCTION
	default:
		return DEVELOPMENT
	}
}
