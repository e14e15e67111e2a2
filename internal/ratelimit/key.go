package ratelimit

import "strings"

// Key builds the limiter key for a route class and client identity.
func Key(class, identity string) string {
	if identity == "" {
		identity = "unknown"
	}
	return class + ":" + identity
}

// SplitKey is the inverse of Key.
func SplitKey(key string) (class, identity string) {
	class, identity, found := strings.Cut(key, ":")
	if !found {
		return "", key
	}
	return class, identity
}
