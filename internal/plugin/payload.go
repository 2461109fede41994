package plugin

import (
	"fmt"
	"strings"
)

// Payload is the free-form request body handed to a plugin.
type Payload map[string]interface{}

func (p Payload) String(key, fallback string) string {
	raw, ok := p[key]
	if !ok || raw == nil {
		return fallback
	}
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Strings accepts either a list or a comma-separated string.
func (p Payload) Strings(key string, fallback []string) []string {
	raw, ok := p[key]
	if !ok || raw == nil {
		return fallback
	}
	out := []string{}
	switch v := raw.(type) {
	case []string:
		out = append(out, v...)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func (p Payload) Bool(key string, fallback bool) bool {
	raw, ok := p[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return fallback
}

func (p Payload) Int(key string, fallback int) int {
	raw, ok := p[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return fallback
}
