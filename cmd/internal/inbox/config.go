package inbox

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the delivery pipeline. Queue limit and lookback window are
// deliberately small: the product goal is a handful of gentle prompts, not
// a feed.
const (
	DefaultQueueLimit   = 5
	DefaultLookbackDays = 14
	DefaultAgentTimeout = 45 * time.Second
)

// Config is the explicit configuration passed to the engine at
// construction time. There are no ambient globals; env lookup happens only
// in LoadConfigFromEnv.
type Config struct {
	// QueueLimit bounds outstanding pending items per user.
	QueueLimit int

	// LookbackDays is the dedupe window over delivered history.
	LookbackDays int

	// MaxBatchItems caps candidates accepted per generation cycle.
	MaxBatchItems int

	// AgentTimeout bounds the agent invocation, the only
	// unbounded-latency external call in the pipeline.
	AgentTimeout time.Duration

	// Metadata is attached to every audit event for traceability
	// (job-run id, request id).
	Metadata map[string]string
}

// DefaultConfig returns the baked-in defaults.
func DefaultConfig() Config {
	return Config{
		QueueLimit:    DefaultQueueLimit,
		LookbackDays:  DefaultLookbackDays,
		MaxBatchItems: DefaultMaxBatchItems,
		AgentTimeout:  DefaultAgentTimeout,
	}
}

// LoadConfigFromEnv loads Config from environment variables with defaults.
func LoadConfigFromEnv() Config {
	return Config{
		QueueLimit:    envIntInbox("HAVEN_INBOX_QUEUE_LIMIT", DefaultQueueLimit),
		LookbackDays:  envIntInbox("HAVEN_INBOX_LOOKBACK_DAYS", DefaultLookbackDays),
		MaxBatchItems: envIntInbox("HAVEN_INBOX_MAX_BATCH_ITEMS", DefaultMaxBatchItems),
		AgentTimeout:  envDurationInbox("HAVEN_INBOX_AGENT_TIMEOUT", DefaultAgentTimeout),
	}
}

// Validate checks config sanity; all errors wrap ErrConfig.
func (c Config) Validate() error {
	if c.QueueLimit <= 0 {
		return fmt.Errorf("%w: queue limit must be positive, got %d", ErrConfig, c.QueueLimit)
	}
	if c.LookbackDays <= 0 {
		return fmt.Errorf("%w: lookback days must be positive, got %d", ErrConfig, c.LookbackDays)
	}
	if c.MaxBatchItems <= 0 {
		return fmt.Errorf("%w: max batch items must be positive, got %d", ErrConfig, c.MaxBatchItems)
	}
	if c.AgentTimeout <= 0 {
		return fmt.Errorf("%w: agent timeout must be positive, got %s", ErrConfig, c.AgentTimeout)
	}
	return nil
}

// Lookback converts LookbackDays to a duration.
func (c Config) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

func envIntInbox(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationInbox(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
