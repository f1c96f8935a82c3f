package config

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func stringOr(v *viper.Viper, key, fallback string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return fallback
}

func intOf(raw any) (int, bool) {
	switch n := raw.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func positiveOr(v *viper.Viper, key string, fallback int) int {
	if n, ok := intOf(v.Get(key)); ok && n > 0 {
		return n
	}
	return fallback
}

func validPort(n int) bool { return n > 0 && n <= 65535 }

func portOr(v *viper.Viper, key string, fallback int) int {
	if n, ok := intOf(v.Get(key)); ok && validPort(n) {
		return n
	}
	return fallback
}

func boolOr(v *viper.Viper, key string, fallback bool) bool {
	switch b := v.Get(key).(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	}
	return fallback
}

// durationOr accepts Go duration strings ("1.5s") or bare numbers of seconds.
// Zero is only accepted when allowZero is set.
func durationOr(v *viper.Viper, key string, fallback time.Duration, allowZero bool) time.Duration {
	var d time.Duration
	switch raw := v.Get(key).(type) {
	case time.Duration:
		d = raw
	case int:
		d = time.Duration(raw) * time.Second
	case int64:
		d = time.Duration(raw) * time.Second
	case float64:
		d = time.Duration(raw * float64(time.Second))
	case string:
		s := strings.TrimSpace(raw)
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			d = time.Duration(secs * float64(time.Second))
		} else if parsed, err := time.ParseDuration(s); err == nil {
			d = parsed
		} else {
			return fallback
		}
	default:
		return fallback
	}
	if d < 0 || (d == 0 && !allowZero) {
		return fallback
	}
	return d
}

// portRange accepts a two-element list from JSON or "start,end" / "start-end"
// from the environment. Anything else yields the fixed-port policy.
func portRange(raw any) []int {
	var parts []any
	switch r := raw.(type) {
	case []any:
		parts = r
	case []int:
		for _, n := range r {
			parts = append(parts, n)
		}
	case []string:
		for _, s := range r {
			parts = append(parts, s)
		}
	case string:
		s := strings.TrimSpace(r)
		if s == "" {
			return nil
		}
		sep := ","
		if !strings.Contains(s, sep) {
			sep = "-"
		}
		for _, p := range strings.SplitN(s, sep, 2) {
			parts = append(parts, p)
		}
	}
	if len(parts) != 2 {
		return nil
	}
	start, ok1 := intOf(parts[0])
	end, ok2 := intOf(parts[1])
	if !ok1 || !ok2 || !validPort(start) || !validPort(end) || start > end {
		return nil
	}
	return []int{start, end}
}

func healthPath(v *viper.Viper) string {
	p := stringOr(v, "health_path", DefaultHealthPath)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func logLevel(v *viper.Viper) string {
	s := strings.ToLower(stringOr(v, "log_level", DefaultLogLevel))
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return DefaultLogLevel
	}
	return s
}
