// Package config provides environment helpers for go-dronescan commands.
package config

import (
	"os"
	"strconv"
	"time"
)

// Default drone configuration (Tello station mode).
const (
	DefaultDroneIP     = "192.168.10.1"
	DefaultCommandPort = 8889
	DefaultStatePort   = 8890
)

// DroneIP returns the drone IP from DRONE_IP env var.
// Falls back to the provided default if not set.
func DroneIP(defaultIP string) string {
	if ip := os.Getenv("DRONE_IP"); ip != "" {
		return ip
	}
	return defaultIP
}

// String returns the value of key, or def when unset.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns key parsed as an int. Unset or malformed values yield def.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Float returns key parsed as a float64. Unset or malformed values yield def.
func Float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Millis returns key interpreted as a number of milliseconds.
func Millis(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}
