package anchorsync

import "time"

const (
	DefaultPollInterval = 330 * time.Millisecond
	DefaultMaxWait      = 2 * time.Minute
	DefaultExpiration   = 7 * 24 * time.Hour
	DefaultSettleDelay  = 3 * time.Second
	DefaultEventLogSize = 256
)

type Config struct {
	PollInterval time.Duration
	MaxWait      time.Duration
	Expiration   time.Duration
	SettleDelay  time.Duration
	EventLogSize int
	Logger       Logger
	Dispatcher   *Dispatcher
	Observer     Listener
	Clock        func() time.Time
	OnProgress   func(fraction float64)
}

type Option func(*Config)

// WithPollInterval sets how long the readiness gate sleeps between samples.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = d
	}
}

// WithMaxWait bounds the readiness wait of a save attempt.
func WithMaxWait(d time.Duration) Option {
	return func(c *Config) {
		c.MaxWait = d
	}
}

// WithExpiration sets the lifetime given to newly saved anchors. Zero means no expiration.
func WithExpiration(d time.Duration) Option {
	return func(c *Config) {
		c.Expiration = d
	}
}

// WithSettleDelay sets the pause taken before and after session creation.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) {
		c.SettleDelay = d
	}
}

func WithEventLogSize(n int) Option {
	return func(c *Config) {
		c.EventLogSize = n
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithDispatcher shares an existing dispatcher instead of creating one.
func WithDispatcher(d *Dispatcher) Option {
	return func(c *Config) {
		c.Dispatcher = d
	}
}

// WithObserver registers a listener that receives every remote signal on the owning context.
func WithObserver(l Listener) Option {
	return func(c *Config) {
		c.Observer = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Clock = now
	}
}

// WithProgressHandler receives every readiness sample taken during a save.
func WithProgressHandler(fn func(fraction float64)) Option {
	return func(c *Config) {
		c.OnProgress = fn
	}
}

func defaultConfig() *Config {
	return &Config{
		PollInterval: DefaultPollInterval,
		MaxWait:      DefaultMaxWait,
		Expiration:   DefaultExpiration,
		SettleDelay:  DefaultSettleDelay,
		EventLogSize: DefaultEventLogSize,
		Clock:        time.Now,
	}
}
