package domain

import (
	"encoding/json"
	"time"
)

// PayloadString извлекает строку из payload с default значением.
func (e Envelope) PayloadString(key, defaultVal string) string {
	if val, ok := e.Payload[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}

// PayloadInt извлекает целое число из payload.
// После JSON-декодирования числа приходят как float64.
func (e Envelope) PayloadInt(key string, defaultVal int) int {
	val, ok := e.Payload[key]
	if !ok {
		return defaultVal
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return defaultVal
}

// PayloadBool извлекает bool из payload.
func (e Envelope) PayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

// PayloadDuration извлекает длительность, заданную в секундах (number).
func (e Envelope) PayloadDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(time.Second))
			}
		case int:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		}
	}
	return defaultVal
}

// PayloadTime извлекает время в формате RFC 3339.
func (e Envelope) PayloadTime(key string) (time.Time, bool) {
	s := e.PayloadString(key, "")
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
