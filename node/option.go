// option.go defines configuration options for nodes.

package node

const (
	DefaultQueueSize = 8
	MaxInputs        = 4
	MaxOutputs       = 4
)

// InputPolicy defines which incoming connection a worker polls first.
type InputPolicy uint

const (
	// InputPolicyRoundRobin rotates the first polled connection every
	// iteration, so a busy upstream cannot starve the others.
	InputPolicyRoundRobin = InputPolicy(iota)

	// InputPolicyFirst always polls the connections in the order they
	// were created; the first one having a frame wins.
	InputPolicyFirst
)

func (p InputPolicy) String() string {
	switch p {
	case InputPolicyRoundRobin:
		return "round-robin"
	case InputPolicyFirst:
		return "first"
	default:
		return "unknown"
	}
}

type Config struct {
	QueueSize        uint
	AutoReleaseInput bool
	PrivateData      any
	InputPolicy      InputPolicy
}

func defaultConfig() Config {
	return Config{
		QueueSize:        DefaultQueueSize,
		AutoReleaseInput: true,
		InputPolicy:      InputPolicyRoundRobin,
	}
}

type Option interface {
	apply(*Config)
}
type Options []Option

func (opts Options) apply(cfg *Config) {
	for _, opt := range opts {
		opt.apply(cfg)
	}
}

func (opts Options) config() Config {
	cfg := defaultConfig()
	opts.apply(&cfg)
	return cfg
}

// OptionQueueSize sets the capacity of the output queue.
type OptionQueueSize uint

func (opt OptionQueueSize) apply(cfg *Config) {
	cfg.QueueSize = uint(opt)
}

// OptionAutoReleaseInput defines if the worker drops the input references
// after Process returns. If disabled, the kernel owns the inputs.
type OptionAutoReleaseInput bool

func (opt OptionAutoReleaseInput) apply(cfg *Config) {
	cfg.AutoReleaseInput = bool(opt)
}

type OptionPrivateDataValue struct {
	Value any
}

func (opt OptionPrivateDataValue) apply(cfg *Config) {
	cfg.PrivateData = opt.Value
}

// OptionPrivateData attaches kernel-specific data to the node.
func OptionPrivateData(v any) OptionPrivateDataValue {
	return OptionPrivateDataValue{Value: v}
}

type OptionInputPolicy InputPolicy

func (opt OptionInputPolicy) apply(cfg *Config) {
	cfg.InputPolicy = InputPolicy(opt)
}
