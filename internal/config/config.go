// Package config loads the provenance configuration from a YAML or CUE
// file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/provenance/internal/storage/remote"
)

// Config is the provenance configuration file.
//
//	version: 1
//	storage: {sqlite: provenance.db, prefix: provenance, session: false}
//	remote:  {enabled: true, postgres: {host: db, port: "5432", ...}}
//	events:  {mqtt_broker: tcp://localhost:1883, mqtt_topic: provenance, listen: ":8080"}
//	replay:  {budget_ms: 500}
type Config struct {
	Version int `yaml:"version" json:"version"`

	Storage struct {
		SQLite  string `yaml:"sqlite" json:"sqlite"`
		Prefix  string `yaml:"prefix" json:"prefix"`
		Session bool   `yaml:"session" json:"session"`
	} `yaml:"storage" json:"storage"`

	Remote struct {
		Enabled  bool                  `yaml:"enabled" json:"enabled"`
		Postgres remote.PostgresConfig `yaml:"postgres" json:"postgres"`
	} `yaml:"remote" json:"remote"`

	Events struct {
		MQTTBroker string `yaml:"mqtt_broker" json:"mqtt_broker"`
		MQTTTopic  string `yaml:"mqtt_topic" json:"mqtt_topic"`
		Listen     string `yaml:"listen" json:"listen"`
	} `yaml:"events" json:"events"`

	Replay struct {
		BudgetMS int64 `yaml:"budget_ms" json:"budget_ms"`
	} `yaml:"replay" json:"replay"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{Version: 1}
}

// Load reads path (".cue" files through CUE, anything else as YAML) and
// applies the environment overrides.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if filepath.Ext(path) == ".cue" {
		if err := decodeCUE(path, b, &cfg); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported %s version: %d", filepath.Base(path), cfg.Version)
	}

	cfg.ApplyEnv(os.LookupEnv)
	return &cfg, nil
}

func decodeCUE(path string, b []byte, cfg *Config) error {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(b, cue.Filename(path))
	if err := v.Err(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := v.Decode(cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file values with PROVENANCE_SQLITE, MQTT_URL and the
// PG* variables when they are set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Storage.SQLite, "PROVENANCE_SQLITE")
	set(&c.Events.MQTTBroker, "MQTT_URL")
	set(&c.Remote.Postgres.Host, "PGHOST")
	set(&c.Remote.Postgres.Port, "PGPORT")
	set(&c.Remote.Postgres.User, "PGUSER")
	set(&c.Remote.Postgres.Database, "PGDATABASE")
	set(&c.Remote.Postgres.Password, "PGPASSWORD")
}

// SQLitePath returns the local database path, defaulting to provenance.db.
func (c *Config) SQLitePath() string {
	if c.Storage.SQLite == "" {
		return "provenance.db"
	}
	return c.Storage.SQLite
}

// KeyPrefix returns the local key prefix, defaulting to "provenance".
func (c *Config) KeyPrefix() string {
	if c.Storage.Prefix == "" {
		return "provenance"
	}
	return c.Storage.Prefix
}

// MQTTTopic returns the topic prefix, defaulting to "provenance".
func (c *Config) MQTTTopic() string {
	if c.Events.MQTTTopic == "" {
		return "provenance"
	}
	return c.Events.MQTTTopic
}

// Listen returns the HTTP listen address, defaulting to :8080.
func (c *Config) Listen() string {
	if c.Events.Listen == "" {
		return ":8080"
	}
	return c.Events.Listen
}

// ReplayBudget returns the default time budget for jumps and undos.
func (c *Config) ReplayBudget() time.Duration {
	return time.Duration(c.Replay.BudgetMS) * time.Millisecond
}

// Postgres returns the connection parameters, with unset fields taken from
// the libpq defaults.
func (c *Config) Postgres() remote.PostgresConfig {
	p := c.Remote.Postgres
	def := remote.PostgresConfigFromEnv()
	if p.Host == "" {
		p.Host = def.Host
	}
	if p.Port == "" {
		p.Port = def.Port
	}
	if p.User == "" {
		p.User = def.User
	}
	if p.Database == "" {
		p.Database = def.Database
	}
	if p.Password == "" {
		p.Password = def.Password
	}
	return p
}
