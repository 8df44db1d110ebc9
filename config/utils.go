// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package config

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfigFromFile reads and validates application configuration from the
// specified file path. Returns error if the file cannot be read or contains
// invalid configuration.
func LoadConfigFromFile(ctx context.Context, path string) (*Config, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open configuration file: %w", err)
	}
	defer fp.Close()

	cfg := &Config{}
	if err := decodeStrictYAML(fp, cfg); err != nil {
		return nil, fmt.Errorf("malformed configuration file: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadDataFromFile reads a dataset from the specified file path. The file
// holds a YAML list of mappings; each mapping is one data instance whose
// fields substitute into prompt templates and feed the metric function.
func LoadDataFromFile(ctx context.Context, path string) ([]map[string]any, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer fp.Close()

	var data []map[string]any
	if err := yaml.NewDecoder(fp).Decode(&data); err != nil {
		return nil, fmt.Errorf("malformed dataset file: %w", err)
	}

	return data, nil
}

// decodeStrictYAML decodes YAML from r, rejecting unknown fields so typos in
// configuration files fail loudly instead of being silently dropped.
// Strictness does not reach into custom unmarshalers such as
// PricePair.UnmarshalYAML, which decode their own nodes.
func decodeStrictYAML(r io.Reader, out any) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	return decoder.Decode(out)
}
