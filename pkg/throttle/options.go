package throttle

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/throttlekit/throttle/pkg/xlog"
)

// options holds everything an Option can set on an Adapter under
// construction.
type options struct {
	config        Config
	logger        xlog.Logger
	meterProvider metric.MeterProvider
	metrics       *Metrics
	libraryName   string
	procedureName string
	now           func() time.Time
	initErr       error // deferred config-loading error, checked at New
}

// validate returns whatever initErr was staged during option application,
// or the final config's own validation error.
func (o *options) validate() error {
	if o.initErr != nil {
		return o.initErr
	}
	return o.config.Validate()
}

// Option configures an Adapter at construction time.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		config:        Config{Redis: RedisConfig{}, Throttler: DefaultThrottlerConfig()},
		libraryName:   DefaultLibraryName,
		procedureName: DefaultProcedureName,
		now:           time.Now,
	}
}

// WithConfig overrides the full configuration.
func WithConfig(config Config) Option {
	return func(o *options) {
		o.config = config
	}
}

// WithLogger sets the structured logger. Unset, the adapter logs nothing.
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeterProvider enables metrics collection via the given
// OpenTelemetry MeterProvider. Unset, no metrics are recorded.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithLibraryName overrides the Redis Functions library name the loader
// installs the admission procedure under. Defaults to DefaultLibraryName.
func WithLibraryName(name string) Option {
	return func(o *options) {
		if name == "" {
			o.initErr = NewConfigurationError(CodeInvalidConfiguration, "library_name", "library name cannot be empty")
			return
		}
		o.libraryName = name
	}
}

// WithProcedureName overrides the registered function name within the
// library. Defaults to DefaultProcedureName.
func WithProcedureName(name string) Option {
	return func(o *options) {
		if name == "" {
			o.initErr = NewConfigurationError(CodeInvalidConfiguration, "procedure_name", "procedure name cannot be empty")
			return
		}
		o.procedureName = name
	}
}

// WithNowFunc overrides the clock used to stamp admissions. Intended for
// tests exercising window expiry deterministically.
func WithNowFunc(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
