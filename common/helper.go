// Package common holds the env-based configuration helpers shared by every
// drivebridge binary.
package common

import (
	"os"
	"strconv"
	"time"
)

// GetEnv returns the environment variable value, or fallback when the
// variable is unset or empty.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// ParseDuration parses a duration string, falling back on parse failure.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// ParseInt parses an int string, falling back on parse failure.
func ParseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
