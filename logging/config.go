package logging

import "time"

// Config controls a Router's dispatch behavior: buffer size, minimum
// severity, extra fields, and the drop-warning interval. NewRouter does not
// read EnabledSinks, JSON, or Console; the sinks it forwards to are the ones
// passed to it. A navd driver builds one Config for the process, not one
// per Router.
type Config struct {
	EnabledSinks     []string
	BufferSize       int
	MinimumSeverity  Severity
	Fields           map[string]any
	JSON             JSONConfig
	Console          ConsoleConfig
	DropWarnInterval time.Duration
}

// JSONConfig configures the JSON-lines sink's output file and batching.
type JSONConfig struct {
	FilePath      string
	MaxBatch      int
	FlushInterval time.Duration
}

// ConsoleConfig configures the console sink's formatting.
type ConsoleConfig struct {
	UseColor bool
}

// DefaultConfig returns a Config with a console sink at info severity,
// suitable for navd's default demonstration run.
func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{"console"},
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			MaxBatch:      32,
			FlushInterval: 2 * time.Second,
		},
	}
}

func (c Config) HasSink(name string) bool {
	for _, s := range c.EnabledSinks {
		if s == name {
			return true
		}
	}
	return false
}

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
