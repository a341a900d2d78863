package common

import (
	"fmt"
	"strings"
)

// StringArg returns the trimmed string argument key, or "" when it is
// missing or not a string.
func StringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// RequireStringArg is StringArg that fails on an empty value.
func RequireStringArg(args map[string]interface{}, key string) (string, error) {
	v := StringArg(args, key)
	if v == "" {
		return "", fmt.Errorf("'%s' field is required", key)
	}
	return v, nil
}
