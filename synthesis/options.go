package synthesis

import "go.uber.org/zap"

type options struct {
	logger     *zap.Logger
	tokenizer  Tokenizer
	verifier   FidelityVerifier
	recorder   Recorder
	planSchema map[string]any
	source     string
}

// Option configures a pipeline.
type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithTokenizer(t Tokenizer) Option {
	return func(o *options) {
		if t != nil {
			o.tokenizer = t
		}
	}
}

// WithVerifier sets the rephrase fidelity gate. Without it every first candidate is accepted.
func WithVerifier(v FidelityVerifier) Option {
	return func(o *options) {
		if v != nil {
			o.verifier = v
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithPlanSchema attaches a JSON schema to planning calls for backends with structured output.
func WithPlanSchema(schema map[string]any) Option {
	return func(o *options) { o.planSchema = schema }
}

// WithSourceName labels run records with the input they came from.
func WithSourceName(name string) Option {
	return func(o *options) { o.source = name }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:    zap.NewNop(),
		tokenizer: WhitespaceTokenizer{},
		verifier:  NoOpVerifier{},
		recorder:  nopRecorder{},
	}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
