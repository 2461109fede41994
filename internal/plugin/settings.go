package plugin

import "strings"

// Settings is shared by pointer with every plugin and is only read through its
// accessors once the registry has been built.
type Settings struct {
	apiKeys    map[string]string
	thresholds map[string]float64
	endpoints  map[string]string
}

func NewSettings(apiKeys map[string]string, thresholds map[string]float64, endpoints map[string]string) *Settings {
	s := &Settings{
		apiKeys:    map[string]string{},
		thresholds: map[string]float64{},
		endpoints:  map[string]string{},
	}
	for k, v := range apiKeys {
		s.apiKeys[strings.ToLower(k)] = v
	}
	for k, v := range thresholds {
		s.thresholds[k] = v
	}
	for k, v := range endpoints {
		s.endpoints[k] = strings.TrimRight(v, "/")
	}
	return s
}

// APIKey returns the key registered under name or fallback when it is unset.
func (s *Settings) APIKey(name, fallback string) string {
	if s == nil {
		return fallback
	}
	if v, ok := s.apiKeys[strings.ToLower(name)]; ok && v != "" {
		return v
	}
	return fallback
}

func (s *Settings) HasAPIKey(name string) bool {
	return s.APIKey(name, "") != ""
}

func (s *Settings) Threshold(name string, fallback float64) float64 {
	if s == nil {
		return fallback
	}
	if v, ok := s.thresholds[name]; ok {
		return v
	}
	return fallback
}

// Endpoint returns the base URL override for name, or fallback.
func (s *Settings) Endpoint(name, fallback string) string {
	if s == nil {
		return fallback
	}
	if v, ok := s.endpoints[name]; ok && v != "" {
		return v
	}
	return fallback
}
