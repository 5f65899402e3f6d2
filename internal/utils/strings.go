package utils

import "strings"

// ParseList splits s on sep and returns the trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
func ParseList(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// ParseCSV is ParseList with a comma separator. Used for origin lists in config.
func ParseCSV(s string) []string {
	return ParseList(s, ",")
}
