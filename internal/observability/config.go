package observability

// Config is the observability section of the application config file.
type Config struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, text
}

// DefaultConfig returns the default observability configuration.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			Exporter:       "otlp",
			OTLPEndpoint:   "localhost:4318",
			ZipkinEndpoint: "http://localhost:9411/api/v2/spans",
			SampleRate:     1.0,
			ServiceName:    "dbxagent",
			ServiceVersion: "1.0.0",
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig. Enabled flags are
// taken as given.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = def.Tracing.Exporter
	}
	if c.Tracing.OTLPEndpoint == "" {
		c.Tracing.OTLPEndpoint = def.Tracing.OTLPEndpoint
	}
	if c.Tracing.ZipkinEndpoint == "" {
		c.Tracing.ZipkinEndpoint = def.Tracing.ZipkinEndpoint
	}
	// A zero sample rate cannot be expressed; disable tracing instead.
	if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1.0 {
		c.Tracing.SampleRate = def.Tracing.SampleRate
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = def.Tracing.ServiceName
	}
	if c.Tracing.ServiceVersion == "" {
		c.Tracing.ServiceVersion = def.Tracing.ServiceVersion
	}
	return c
}
