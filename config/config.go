// This package defines a common config struct which can be used by any subsystem within hush.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/meow-io/go-hush/contentid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Conversation ids which are never restored from a persisted session, even when they parse.
var DefaultDenyList = []string{
	"84531-0x1287afe7Fe61A9A7e5F846673051b00ecb82379a",
}

type Config struct {
	Debug              bool
	RootDir            string
	LoggingPrefix      string
	DenyList           []string
	DefaultChat        contentid.ContentID
	MonitorForRequests bool
	LookupTimeoutMs    int64
	RequestTimeoutMs   int64
	ProviderTimeoutMs  int64
	RelayServiceType   string
	writer             io.Writer
	writerSet          bool
}

func (c Config) Logger(source string) *zap.SugaredLogger {
	var p string
	if source == "" {
		p = c.LoggingPrefix
	} else if c.LoggingPrefix == "" {
		p = source
	} else {
		p = fmt.Sprintf("%s:%s", c.LoggingPrefix, source)
	}

	level := zapcore.InfoLevel
	if c.Debug {
		level = zapcore.DebugLevel
	}
	opts := []zap.Option{
		zap.Fields(zap.String("source", p)),
	}

	de := zap.NewDevelopmentEncoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(de), zapcore.AddSync(os.Stdout), level),
	}
	if c.writer != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(de), zapcore.AddSync(c.writer), level))
	}
	return zap.New(zapcore.NewTee(cores...), opts...).Sugar()
}

// Denied reports whether a conversation id is on the deny list.
func (c Config) Denied(id string) bool {
	for _, d := range c.DenyList {
		if d == id {
			return true
		}
	}
	return false
}

type Option func(*Config)

func WithDebug(d bool) Option {
	return func(c *Config) {
		c.Debug = d
	}
}

func WithRootDir(d string) Option {
	return func(c *Config) {
		c.RootDir = d
	}
}

func WithLoggingPrefix(p string) Option {
	return func(c *Config) {
		c.LoggingPrefix = p
	}
}

func WithDenyList(ids ...string) Option {
	return func(c *Config) {
		c.DenyList = ids
	}
}

func WithDefaultChat(id contentid.ContentID) Option {
	return func(c *Config) {
		c.DefaultChat = id
	}
}

func WithMonitorForRequests(m bool) Option {
	return func(c *Config) {
		c.MonitorForRequests = m
	}
}

func WithLookupTimeoutMs(n int64) Option {
	return func(c *Config) {
		c.LookupTimeoutMs = n
	}
}

func WithRequestTimeoutMs(n int64) Option {
	return func(c *Config) {
		c.RequestTimeoutMs = n
	}
}

func WithProviderTimeoutMs(n int64) Option {
	return func(c *Config) {
		c.ProviderTimeoutMs = n
	}
}

func WithRelayServiceType(s string) Option {
	return func(c *Config) {
		c.RelayServiceType = s
	}
}

// Use the given writer instead of the rotating log file. A nil writer logs to stdout only.
func WithLogWriter(w io.Writer) Option {
	return func(c *Config) {
		c.writer = w
		c.writerSet = true
	}
}

func defaults() *Config {
	return &Config{
		Debug:              os.Getenv("DEBUG") == "1",
		RootDir:            ".",
		LoggingPrefix:      "",
		DenyList:           append([]string{}, DefaultDenyList...),
		MonitorForRequests: true,
		LookupTimeoutMs:    1000,
		RequestTimeoutMs:   5000,
		ProviderTimeoutMs:  5000,
		RelayServiceType:   "_hush._tcp",
	}
}

func NewConfig(opts ...Option) *Config {
	return build(defaults(), opts)
}

func build(c *Config, opts []Option) *Config {
	for _, o := range opts {
		o(c)
	}
	if !c.writerSet {
		c.writer = &lumberjack.Logger{
			Filename:   filepath.Join(c.RootDir, "out.log"),
			MaxSize:    500, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	return c
}

type fileChat struct {
	Chain    int    `toml:"chain"`
	Contract string `toml:"contract"`
	Provider string `toml:"provider"`
}

type fileConfig struct {
	Debug              *bool     `toml:"debug"`
	RootDir            *string   `toml:"root_dir"`
	LoggingPrefix      *string   `toml:"logging_prefix"`
	DenyList           *[]string `toml:"deny_list"`
	MonitorForRequests *bool     `toml:"monitor_for_requests"`
	LookupTimeoutMs    *int64    `toml:"lookup_timeout_ms"`
	RequestTimeoutMs   *int64    `toml:"request_timeout_ms"`
	ProviderTimeoutMs  *int64    `toml:"provider_timeout_ms"`
	RelayServiceType   *string   `toml:"relay_service_type"`
	DefaultChat        *fileChat `toml:"default_chat"`
}

// Load a TOML config file. Keys present in the file override the defaults and explicit options
// override the file.
func LoadFile(path string, opts ...Option) (*Config, error) {
	fc := &fileConfig{}
	md, err := toml.DecodeFile(path, fc)
	if err != nil {
		return nil, fmt.Errorf("config: error reading %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: unknown keys in %s: %v", path, undecoded)
	}

	c := defaults()
	if fc.Debug != nil {
		c.Debug = *fc.Debug
	}
	if fc.RootDir != nil {
		c.RootDir = *fc.RootDir
	}
	if fc.LoggingPrefix != nil {
		c.LoggingPrefix = *fc.LoggingPrefix
	}
	if fc.DenyList != nil {
		c.DenyList = *fc.DenyList
	}
	if fc.MonitorForRequests != nil {
		c.MonitorForRequests = *fc.MonitorForRequests
	}
	if fc.LookupTimeoutMs != nil {
		c.LookupTimeoutMs = *fc.LookupTimeoutMs
	}
	if fc.RequestTimeoutMs != nil {
		c.RequestTimeoutMs = *fc.RequestTimeoutMs
	}
	if fc.ProviderTimeoutMs != nil {
		c.ProviderTimeoutMs = *fc.ProviderTimeoutMs
	}
	if fc.RelayServiceType != nil {
		c.RelayServiceType = *fc.RelayServiceType
	}
	if fc.DefaultChat != nil {
		id := contentid.ContentID{Chain: fc.DefaultChat.Chain, Contract: fc.DefaultChat.Contract, Provider: fc.DefaultChat.Provider}
		if err := id.Validate(); err != nil {
			return nil, fmt.Errorf("config: invalid default_chat in %s: %w", path, err)
		}
		c.DefaultChat = id
	}
	return build(c, opts), nil
}
