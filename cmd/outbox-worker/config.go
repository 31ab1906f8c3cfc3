package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mcdev12/registry/internal/outbox"
	"gopkg.in/yaml.v3"
)

// Config is the worker's file configuration. Connection and tuning values
// come from the environment; this file selects the sink and the listener.
type Config struct {
	Sink        string `yaml:"sink"` // nats | kafka | mock
	MetricsAddr string `yaml:"metrics_addr"`
	NATS        struct {
		URL           string `yaml:"url"`
		StreamName    string `yaml:"stream_name"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Listener struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"listener"`
}

func loadConfig(path string) (*Config, error) {
	config := Config{
		Sink:        "nats",
		MetricsAddr: ":9102",
	}
	if path == "" {
		return &config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

func buildPublisher(cfg *Config) (outbox.EventPublisher, func() error, error) {
	switch cfg.Sink {
	case "nats":
		jsCfg := outbox.DefaultJetStreamConfig()
		if cfg.NATS.URL != "" {
			jsCfg.URL = cfg.NATS.URL
		}
		if cfg.NATS.StreamName != "" {
			jsCfg.StreamName = cfg.NATS.StreamName
		}
		if cfg.NATS.SubjectPrefix != "" {
			jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		}
		publisher, err := outbox.NewJetStreamPublisher(jsCfg)
		if err != nil {
			return nil, nil, err
		}
		return publisher, publisher.Close, nil
	case "kafka":
		kCfg := outbox.DefaultKafkaConfig()
		if len(cfg.Kafka.Brokers) > 0 {
			kCfg.Brokers = cfg.Kafka.Brokers
		}
		if cfg.Kafka.Topic != "" {
			kCfg.Topic = cfg.Kafka.Topic
		}
		publisher := outbox.NewKafkaPublisher(kCfg)
		return publisher, publisher.Close, nil
	case "mock":
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
		return outbox.NewMockPublisher(logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}
