package config

import "time"

type Config struct {
	Service      *ServiceConfig      `mapstructure:"service"`
	DefaultModel *DefaultModelConfig `mapstructure:"default_model,omitempty"`
	OTEL         *OTELConfig         `mapstructure:"otel,omitempty"`
	Prometheus   *PrometheusConfig   `mapstructure:"prometheus,omitempty"`
}

type ServiceConfig struct {
	Port int `mapstructure:"port"`
	// ReadyFile is touched once the server is accepting connections.
	ReadyFile string `mapstructure:"ready_file,omitempty"`
	// TerminationFile receives the reason for a startup failure so the
	// kubelet can surface it in the pod status.
	TerminationFile string `mapstructure:"termination_file,omitempty"`
	// RequestTimeout bounds every outbound call (Kubernetes API, model
	// endpoints). Defaults to 30s.
	RequestTimeout time.Duration `mapstructure:"request_timeout,omitempty"`
	// EvaluationTimeout bounds one full evaluation. Defaults to 5m.
	EvaluationTimeout time.Duration `mapstructure:"evaluation_timeout,omitempty"`
	Version           string        `mapstructure:"-"`
	Build             string        `mapstructure:"-"`
	BuildDate         string        `mapstructure:"-"`
	LocalMode         bool          `mapstructure:"-"`
}

// DefaultModelConfig is the process-level fallback model used when no model
// reference resolves, including the no-Kubernetes development mode.
type DefaultModelConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	APIVersion string `mapstructure:"api_version,omitempty"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Path defaults to /metrics.
	Path string `mapstructure:"path,omitempty"`
}

func (c *Config) IsOTELEnabled() bool {
	return (c != nil) && (c.OTEL != nil) && c.OTEL.Enabled
}

func (c *Config) IsPrometheusEnabled() bool {
	return (c != nil) && (c.Prometheus != nil) && c.Prometheus.Enabled
}

func (c *Config) GetRequestTimeout() time.Duration {
	if c != nil && c.Service != nil && c.Service.RequestTimeout > 0 {
		return c.Service.RequestTimeout
	}
	return 30 * time.Second
}

func (c *Config) GetEvaluationTimeout() time.Duration {
	if c != nil && c.Service != nil && c.Service.EvaluationTimeout > 0 {
		return c.Service.EvaluationTimeout
	}
	return 5 * time.Minute
}
