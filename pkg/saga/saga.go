package saga

import (
	"fmt"
	"time"
)

// RetryConfig controls backoff behavior for step and compensation retries.
type RetryConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the default backoff policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// DefaultMaxRetries is the retry budget for steps that do not override it.
const DefaultMaxRetries = 3

// DefaultStepTimeout bounds a single downstream attempt when the step does
// not carry its own deadline.
const DefaultStepTimeout = 30 * time.Second

// Definition describes a declarative saga: an ordered list of steps to
// execute, and to compensate in reverse on failure.
type Definition struct {
	Name               string
	CorrelationID      string
	TenantID           string
	BusinessUnit       string
	Steps              []StepDefinition
	DefaultStepTimeout time.Duration
	DefaultMaxRetries  int
}

// Builder incrementally constructs Definition instances.
type Builder struct {
	def  *Definition
	errs []error
}

// New creates a saga definition builder.
func New(name string) *Builder {
	return &Builder{
		def: &Definition{
			Name:               name,
			Steps:              make([]StepDefinition, 0),
			DefaultStepTimeout: DefaultStepTimeout,
			DefaultMaxRetries:  DefaultMaxRetries,
		},
	}
}

// Step appends a step; sequence numbers follow declaration order.
func (b *Builder) Step(stepType StepType, serviceName, endpoint string, opts ...StepOption) *Builder {
	def := StepDefinition{
		Type:        stepType,
		ServiceName: serviceName,
		Endpoint:    endpoint,
		MaxRetries:  -1,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&def); err != nil {
			b.errs = append(b.errs, fmt.Errorf("step %s: %w", stepType, err))
		}
	}

	b.def.Steps = append(b.def.Steps, def)
	return b
}

// WithCorrelationID sets the caller-supplied correlation identifier used
// for idempotency and tracing.
func (b *Builder) WithCorrelationID(id string) *Builder {
	b.def.CorrelationID = id
	return b
}

// WithTenant sets the tenant and business-unit context.
func (b *Builder) WithTenant(tenantID, businessUnit string) *Builder {
	b.def.TenantID = tenantID
	b.def.BusinessUnit = businessUnit
	return b
}

// WithDefaultStepTimeout sets the per-attempt deadline for steps without
// an explicit timeout.
func (b *Builder) WithDefaultStepTimeout(timeout time.Duration) *Builder {
	b.def.DefaultStepTimeout = timeout
	return b
}

// WithDefaultMaxRetries sets the retry budget for steps without an
// explicit override.
func (b *Builder) WithDefaultMaxRetries(n int) *Builder {
	b.def.DefaultMaxRetries = n
	return b
}

// Build validates and returns the saga definition.
func (b *Builder) Build() (*Definition, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	return b.def.clone(), nil
}

// Validate validates saga structure.
func (d *Definition) Validate() error {
	if d == nil {
		return fmt.Errorf("saga definition cannot be nil")
	}
	if d.Name == "" {
		return fmt.Errorf("saga name cannot be empty")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("saga must define at least one step")
	}
	if d.DefaultStepTimeout < 0 {
		return fmt.Errorf("default step timeout cannot be negative")
	}
	if d.DefaultMaxRetries < 0 {
		return fmt.Errorf("default max retries cannot be negative")
	}

	for i, step := range d.Steps {
		if step.Type == "" {
			return fmt.Errorf("step %d: type cannot be empty", i+1)
		}
		if step.ServiceName == "" {
			return fmt.Errorf("step %d (%s): service name cannot be empty", i+1, step.Type)
		}
		if step.Endpoint == "" {
			return fmt.Errorf("step %d (%s): endpoint cannot be empty", i+1, step.Type)
		}
		if step.Timeout < 0 {
			return fmt.Errorf("step %d (%s): timeout cannot be negative", i+1, step.Type)
		}
	}

	return nil
}

func (d *Definition) clone() *Definition {
	steps := make([]StepDefinition, len(d.Steps))
	copy(steps, d.Steps)
	for i := range steps {
		steps[i].InputData = copyDataMap(d.Steps[i].InputData)
	}

	return &Definition{
		Name:               d.Name,
		CorrelationID:      d.CorrelationID,
		TenantID:           d.TenantID,
		BusinessUnit:       d.BusinessUnit,
		Steps:              steps,
		DefaultStepTimeout: d.DefaultStepTimeout,
		DefaultMaxRetries:  d.DefaultMaxRetries,
	}
}

func copyDataMap(source map[string]any) map[string]any {
	if source == nil {
		return nil
	}
	copied := make(map[string]any, len(source))
	for k, v := range source {
		copied[k] = v
	}
	return copied
}
