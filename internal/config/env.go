package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Env is a typed view over the process environment, generalizing the
// getenv/mustGetenv helpers this codebase's command entry points use.
type Env struct{}

// New returns an Env reading from os.Getenv.
func New() Env { return Env{} }

// String returns the value of k, or def if unset or empty.
func (Env) String(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// MustString returns the value of k, or panics with a descriptive error
// if it is unset. Command entry points should recover this into a fatal
// log line and a non-zero exit code rather than let it propagate raw.
func (Env) MustString(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic(fmt.Sprintf("config: missing required environment variable %s", k))
	}
	return v
}

// Int returns the integer value of k, or def if unset or unparsable.
func (Env) Int(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Duration returns the time.Duration value of k (parsed with
// time.ParseDuration), or def if unset or unparsable.
func (Env) Duration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Bool returns the boolean value of k, or def if unset or unparsable.
func (Env) Bool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
