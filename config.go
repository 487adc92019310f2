package explog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from "5s"-style YAML scalars.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the YAML form of the Open options, for embedding applications
// that keep store settings in a file rather than code.
//
//	experimenter: kw
//	autocommit: 5s
//	late_templates: false
//	ntp:
//	  servers: [pool.ntp.org]
//	  timeout: 2s
type Config struct {
	Experimenter  string   `yaml:"experimenter"`
	Autocommit    Duration `yaml:"autocommit"`
	LateTemplates bool     `yaml:"late_templates"`
	NTP           struct {
		Servers []string `yaml:"servers"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"ntp"`
}

// Options converts the config to Open options.
func (c Config) Options() []Option {
	var opts []Option
	if c.Experimenter != "" {
		opts = append(opts, WithExperimenter(c.Experimenter))
	}
	if c.Autocommit > 0 {
		opts = append(opts, WithAutocommit(time.Duration(c.Autocommit)))
	}
	if c.LateTemplates {
		opts = append(opts, WithLateTemplates())
	}
	if len(c.NTP.Servers) > 0 {
		opts = append(opts, WithNTP(c.NTP.Servers...))
	}
	if c.NTP.Timeout > 0 {
		opts = append(opts, WithNTPTimeout(time.Duration(c.NTP.Timeout)))
	}
	return opts
}

// LoadConfig reads a YAML config file and returns the equivalent Open
// options. Unknown fields are rejected so typos fail loudly; an empty file
// yields no options.
func LoadConfig(path string) ([]Option, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c.Options(), nil
}
