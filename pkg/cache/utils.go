package cache

import "fmt"

// GenerateKeyWithParams creates a cache key with multiple parameters,
// e.g. ("decision", "T-101", 42) -> "decision:T-101:42".
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		key = fmt.Sprintf("%s:%v", key, param)
	}
	return key
}

// BuildPattern creates a glob pattern matching every key under prefix.
func BuildPattern(prefix string) string {
	return fmt.Sprintf("%s*", prefix)
}
