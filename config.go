package providers

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/MetaMask/providers-sub001/pkg/log"
)

// Default sub-channel names. The RPC channel carries request/response
// traffic, the state channel carries pushed wallet state snapshots, and
// the phishing channel is reserved for unrelated traffic and dropped.
const (
	DefaultRPCChannel   = "metamask-provider"
	DefaultStateChannel = "publicConfig"
	defaultIgnored      = "phishing"
)

// Config contains configuration options for creating a Provider.
type Config struct {
	// RPCChannel is the sub-channel name carrying RPC traffic.
	RPCChannel string `env:"PROVIDER_RPC_CHANNEL" env-default:"metamask-provider" validate:"required"`
	// StateChannel is the sub-channel name carrying pushed state
	// snapshots.
	StateChannel string `env:"PROVIDER_STATE_CHANNEL" env-default:"publicConfig" validate:"required"`
	// IgnoredChannels is a comma-separated list of sub-channel names
	// whose traffic is dropped silently.
	IgnoredChannels string `env:"PROVIDER_IGNORED_CHANNELS" env-default:"phishing"`
	// StreamBufferSize is the capacity of each sub-channel's delivery
	// channel (default: 64). Traffic beyond it queues without bound.
	StreamBufferSize int `env:"PROVIDER_STREAM_BUFFER_SIZE" env-default:"64" validate:"gte=0"`
	// CallTimeout bounds how long a dispatched request waits for its
	// response. Zero means wait indefinitely, matching wallet prompts
	// that stay open until the user acts.
	CallTimeout time.Duration `env:"PROVIDER_CALL_TIMEOUT" env-default:"0s" validate:"gte=0"`
	// Log configures the logger built when none is supplied. A zero
	// value keeps logging off.
	Log log.Config

	// Logger overrides the logger built from Log (optional).
	Logger log.Logger `env:"-"`
	// Metrics overrides the metrics registration (optional). When nil,
	// metrics are registered on a private throwaway registry.
	Metrics *Metrics `env:"-"`
	// OnPageMetadata supplies the embedding page's title and icon, used
	// by the discovery announcer to describe the provider. Invoked at
	// most once (optional).
	OnPageMetadata func() (title, icon string) `env:"-"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	return Config{
		RPCChannel:       DefaultRPCChannel,
		StateChannel:     DefaultStateChannel,
		IgnoredChannels:  defaultIgnored,
		StreamBufferSize: 64,
	}
}

// LoadConfig reads the configuration from the environment, loading a
// .env file first if one is present.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		return Config{}, fmt.Errorf("error reading environment config: %w", err)
	}
	// The env reader allocates nil struct pointers while scanning.
	// Metrics is runtime-only; an empty allocation must not survive.
	config.Metrics = nil
	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// ignoredChannelNames splits the comma-separated ignore list.
func (c Config) ignoredChannelNames() []string {
	var names []string
	for _, name := range strings.Split(c.IgnoredChannels, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
