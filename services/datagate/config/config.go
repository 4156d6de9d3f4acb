// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads datagate graph files.
//
// A graph file is YAML. It declares components, how they are wired, the
// process settings (store, logging, telemetry, connectivity) and an
// optional list of scripted steps:
//
//	name: demo
//	components:
//	  - {name: data, kind: value, value: {"{0}": [1, 2]}}
//	  - {name: pass, kind: toggle, value: true}
//	  - {name: hold, kind: gate, policy: gatekeeper, data: data, flag: pass}
//	steps:
//	  - set: {pass: false}
//	    print: [hold]
//
// Load applies defaults, then validates with go-playground/validator and
// the cross-reference checks in Validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/datagate/pkg/logging"
	"github.com/AleutianAI/datagate/pkg/validation"
	"github.com/AleutianAI/datagate/services/datagate/gate"
	"github.com/AleutianAI/datagate/services/datagate/telemetry"
)

// Component kinds.
const (
	KindValue    = "value"
	KindToggle   = "toggle"
	KindNumber   = "number"
	KindGate     = "gate"
	KindPasser   = "passer"
	KindRecorder = "recorder"
)

// Connectivity modes.
const (
	ConnectivityNone   = "none"
	ConnectivityStatic = "static"
	ConnectivityTCP    = "tcp"
)

// Defaults applied by Load.
const (
	DefaultStorePath          = "~/.datagate/state"
	DefaultPrometheusPort     = 9090
	DefaultConnectivityPeriod = 30 * time.Second
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnknownComponent is returned for references to undeclared names.
	ErrUnknownComponent = errors.New("unknown component")
)

// Config is a parsed graph file.
type Config struct {
	Name         string             `yaml:"name" validate:"required"`
	Store        StoreConfig        `yaml:"store"`
	Logging      LoggingConfig      `yaml:"logging"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Components   []Component        `yaml:"components" validate:"required,min=1,dive"`
	Steps        []Step             `yaml:"steps" validate:"dive"`
}

// StoreConfig selects where persisted component settings live.
type StoreConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig selects exporters.
type TelemetryConfig struct {
	Traces         string `yaml:"traces" validate:"omitempty,oneof=none otlp stdout"`
	Metrics        string `yaml:"metrics" validate:"omitempty,oneof=none prometheus stdout"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	PrometheusPort int    `yaml:"prometheus_port" validate:"gte=0,lte=65535"`
}

// ConnectivityConfig selects the recorder connectivity precondition.
type ConnectivityConfig struct {
	Mode     string        `yaml:"mode" validate:"omitempty,oneof=none static tcp"`
	Address  string        `yaml:"address" validate:"omitempty,hostname_port"`
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
	OK       *bool         `yaml:"ok"`
}

// Component declares one graph node.
//
// Port fields name other components. Which ports apply depends on Kind.
type Component struct {
	Name   string    `yaml:"name" validate:"required,component"`
	Kind   string    `yaml:"kind" validate:"required,oneof=value toggle number gate passer recorder"`
	Value  yaml.Node `yaml:"value" validate:"-"`
	Policy string    `yaml:"policy" validate:"omitempty,gatepolicy"`

	Data   string `yaml:"data"`
	Flag   string `yaml:"flag"`
	Record string `yaml:"record"`
	Clear  string `yaml:"clear"`
	Limit  string `yaml:"limit"`

	RecordEmpty *bool `yaml:"record_empty"`
}

// IsParam reports whether the component holds a settable value.
func (c Component) IsParam() bool {
	switch c.Kind {
	case KindValue, KindToggle, KindNumber:
		return true
	}
	return false
}

// Step is one scripted interaction: set parameters, solve, print outputs.
type Step struct {
	Name        string               `yaml:"name"`
	Set         map[string]yaml.Node `yaml:"set" validate:"-"`
	RecordEmpty map[string]bool      `yaml:"record_empty"`
	Expire      []string             `yaml:"expire"`
	Print       []string             `yaml:"print"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("gatepolicy", validateGatePolicy)
	_ = validate.RegisterValidation("component", validateComponentName)
}

func validateComponentName(fl validator.FieldLevel) bool {
	return validation.ValidateName(fl.Field().String()) == nil
}

func validateGatePolicy(fl validator.FieldLevel) bool {
	_, err := gate.ParsePolicy(fl.Field().String())
	return err == nil
}

// Load reads, defaults and validates a graph file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a graph document. Unknown fields
// are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields and expands ~ in paths.
func (c *Config) ApplyDefaults() {
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	c.Store.Path = logging.ExpandPath(c.Store.Path)
	c.Logging.Dir = logging.ExpandPath(c.Logging.Dir)
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Telemetry.Traces == "" {
		c.Telemetry.Traces = telemetry.ExporterNone
	}
	if c.Telemetry.Metrics == "" {
		c.Telemetry.Metrics = telemetry.ExporterNone
	}
	if c.Telemetry.PrometheusPort == 0 {
		c.Telemetry.PrometheusPort = DefaultPrometheusPort
	}

	if c.Connectivity.Mode == "" {
		c.Connectivity.Mode = ConnectivityNone
	}
	if c.Connectivity.Timeout == 0 {
		c.Connectivity.Timeout = 2 * time.Second
	}
	if c.Connectivity.Interval == 0 {
		c.Connectivity.Interval = DefaultConnectivityPeriod
	}
}

// Validate runs field validation and cross-reference checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Connectivity.Mode == ConnectivityTCP && c.Connectivity.Address == "" {
		return fmt.Errorf("%w: connectivity mode tcp requires an address", ErrInvalidConfig)
	}

	kinds := make(map[string]string, len(c.Components))
	for _, comp := range c.Components {
		if _, dup := kinds[comp.Name]; dup {
			return fmt.Errorf("%w: duplicate component %q", ErrInvalidConfig, comp.Name)
		}
		kinds[comp.Name] = comp.Kind
	}

	for _, comp := range c.Components {
		if err := checkComponent(comp, kinds); err != nil {
			return err
		}
	}

	for i, step := range c.Steps {
		if err := checkStep(i, step, kinds); err != nil {
			return err
		}
	}
	return nil
}

func checkComponent(comp Component, kinds map[string]string) error {
	ref := func(port, target string) error {
		if target == "" {
			return nil
		}
		if _, ok := kinds[target]; !ok {
			return fmt.Errorf("%w: %s.%s references %w %q", ErrInvalidConfig, comp.Name, port, ErrUnknownComponent, target)
		}
		return nil
	}

	if comp.IsParam() {
		if _, err := DecodeValue(comp.Kind, &comp.Value); err != nil {
			return fmt.Errorf("%w: %s.value: %v", ErrInvalidConfig, comp.Name, err)
		}
		return nil
	}

	if comp.Data == "" {
		return fmt.Errorf("%w: %s %s requires a data port", ErrInvalidConfig, comp.Kind, comp.Name)
	}
	ports := [][2]string{{"data", comp.Data}, {"flag", comp.Flag}}
	if comp.Kind == KindRecorder {
		ports = [][2]string{{"data", comp.Data}, {"record", comp.Record}, {"clear", comp.Clear}, {"limit", comp.Limit}}
	}
	for _, p := range ports {
		if err := ref(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

func checkStep(i int, step Step, kinds map[string]string) error {
	for name, node := range step.Set {
		kind, ok := kinds[name]
		if !ok {
			return fmt.Errorf("%w: step %d sets %w %q", ErrInvalidConfig, i, ErrUnknownComponent, name)
		}
		if _, err := DecodeValue(kind, &node); err != nil {
			return fmt.Errorf("%w: step %d sets %s: %v", ErrInvalidConfig, i, name, err)
		}
	}
	for name := range step.RecordEmpty {
		if kinds[name] != KindRecorder {
			return fmt.Errorf("%w: step %d: record_empty target %q is not a recorder", ErrInvalidConfig, i, name)
		}
	}
	for _, name := range append(append([]string{}, step.Expire...), step.Print...) {
		if _, ok := kinds[name]; !ok {
			return fmt.Errorf("%w: step %d references %w %q", ErrInvalidConfig, i, ErrUnknownComponent, name)
		}
	}
	return nil
}

// LogLevel returns the parsed logging level.
func (c *Config) LogLevel() logging.Level {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return level
}

// TelemetryConfig converts the telemetry section for telemetry.Init.
func (c *Config) TelemetryConfig() telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.TraceExporter = c.Telemetry.Traces
	tc.MetricExporter = c.Telemetry.Metrics
	if c.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	}
	return tc
}
