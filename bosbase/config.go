package bosbase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the yaml file form of the client settings.
// Zero values keep the defaults. Durations are go duration strings, e.g. `10s`.
//
//	url: https://example.bosbase.io
//	token: eyJ...
//	lang: en-US
//	realtime:
//	  connect_timeout: 10s
//	  reconnect_schedule: [200ms, 500ms, 1s, 2s, 5s]
//	pubsub:
//	  reconnect_timeout: 300ms
type Config struct {
	Url         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	Lang        string        `yaml:"lang"`
	UserAgent   string        `yaml:"user_agent"`
	HttpTimeout time.Duration `yaml:"http_timeout"`

	Realtime RealtimeConfig `yaml:"realtime"`
	PubSub   PubSubConfig   `yaml:"pubsub"`
}

type RealtimeConfig struct {
	Path              string          `yaml:"path"`
	ConnectTimeout    time.Duration   `yaml:"connect_timeout"`
	ReconnectSchedule []time.Duration `yaml:"reconnect_schedule"`
}

type PubSubConfig struct {
	Path               string        `yaml:"path"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	ReconnectTimeout   time.Duration `yaml:"reconnect_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	OutboundBufferSize int           `yaml:"outbound_buffer_size"`
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeConfig(f)
}

// unknown fields are rejected
func DecodeConfig(r io.Reader) (*Config, error) {
	config := &Config{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func (self *Config) Validate() error {
	if self.Url == "" {
		return ErrMissingBaseUrl
	}
	return nil
}

// the defaults with the values set in the config applied
func (self *Config) ClientSettings() *ClientSettings {
	settings := DefaultClientSettings()
	if self.Lang != "" {
		settings.Lang = self.Lang
	}
	if self.UserAgent != "" {
		settings.UserAgent = self.UserAgent
	}
	if 0 < self.HttpTimeout {
		settings.HttpTimeout = self.HttpTimeout
	}

	if self.Realtime.Path != "" {
		settings.RealtimeSettings.Path = self.Realtime.Path
	}
	if 0 < self.Realtime.ConnectTimeout {
		settings.RealtimeSettings.ConnectTimeout = self.Realtime.ConnectTimeout
	}
	if 0 < len(self.Realtime.ReconnectSchedule) {
		settings.RealtimeSettings.ReconnectSchedule = self.Realtime.ReconnectSchedule
	}

	if self.PubSub.Path != "" {
		settings.PubSubSettings.Path = self.PubSub.Path
	}
	if 0 < self.PubSub.ConnectTimeout {
		settings.PubSubSettings.ConnectTimeout = self.PubSub.ConnectTimeout
	}
	if 0 < self.PubSub.ReconnectTimeout {
		settings.PubSubSettings.ReconnectTimeout = self.PubSub.ReconnectTimeout
	}
	if 0 < self.PubSub.WriteTimeout {
		settings.PubSubSettings.WriteTimeout = self.PubSub.WriteTimeout
	}
	if 0 < self.PubSub.OutboundBufferSize {
		settings.PubSubSettings.OutboundBufferSize = self.PubSub.OutboundBufferSize
	}
	return settings
}

// a client for the config url, with the config token saved in the auth store
func (self *Config) NewClient(ctx context.Context) (*Client, error) {
	if err := self.Validate(); err != nil {
		return nil, err
	}
	authStore := NewAuthStore()
	if self.Token != "" {
		authStore.Save(self.Token, nil)
	}
	return NewClient(ctx, self.Url, authStore, self.ClientSettings()), nil
}
