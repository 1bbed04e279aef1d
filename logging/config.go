package logging

import "time"

// Config tunes the router queue and enabled sinks.
type Config struct {
	EnabledSinks     []string
	BufferSize       int
	MinimumSeverity  Severity
	Fields           map[string]any
	DropWarnInterval time.Duration
	JSON             JSONConfig
	Console          ConsoleConfig
}

// JSONConfig tunes the newline-delimited JSON sink.
type JSONConfig struct {
	FilePath      string
	FlushInterval time.Duration
}

// ConsoleConfig tunes the plain console sink.
type ConsoleConfig struct {
	UseColor bool
}

// DefaultConfig returns the baseline router configuration.
func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{"console"},
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			FlushInterval: 2 * time.Second,
		},
	}
}

// HasSink reports whether the named sink is enabled.
func (c Config) HasSink(name string) bool {
	for _, s := range c.EnabledSinks {
		if s == name {
			return true
		}
	}
	return false
}

// CloneFields copies the static fields attached to every routed event.
func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cloned[k] = v
	}
	return cloned
}
