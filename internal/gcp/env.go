package gcp

import (
	"os"
	"strconv"
	"strings"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvBool reads a boolean variable; unparsable values fall back.
func GetEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(GetEnv(key, "")))
	if err != nil {
		return fallback
	}
	return v
}

// GetEnvInt reads an integer variable; unparsable values fall back.
func GetEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(GetEnv(key, "")))
	if err != nil {
		return fallback
	}
	return v
}

// GetEnvFloat reads a float variable; unparsable values fall back.
func GetEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(GetEnv(key, "")), 64)
	if err != nil {
		return fallback
	}
	return v
}
