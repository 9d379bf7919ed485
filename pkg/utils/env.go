package utils

import "strings"

// IsProduction reports whether the GO_ENV value names a production deployment
// GO_ENV=prod or production → true
// Any other value → false
func IsProduction(goEnv string) bool {
	switch strings.ToLower(strings.TrimSpace(goEnv)) {
	case "prod", "production":
		return true
	}
	return false
}

// SplitList splits a comma separated value, dropping blank entries
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	var result []string

	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
