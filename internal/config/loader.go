// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load reads the YAML config at path, expands environment variables, and
// returns a defaulted, validated Config. A local .env/.env.local is loaded
// first, if present, so ${VAR} references can pick up developer overrides.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	k, err := expand(k)
	if err != nil {
		return nil, fmt.Errorf("config: expand environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func loadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("config: load %s: %w", name, err)
		}
	}
	return nil
}

// expand replaces ${VAR}/${VAR:-default} placeholders across every string
// value koanf holds and returns a fresh Koanf loaded from the resolved
// tree, so downstream unmarshal sees only resolved values.
func expand(k *koanf.Koanf) (*koanf.Koanf, error) {
	expanded := expandEnvVarsInData(k.Raw())
	m, ok := expanded.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected type after environment expansion")
	}

	fresh := koanf.New(".")
	if err := fresh.Load(confmap.Provider(m, "."), nil); err != nil {
		return nil, err
	}
	return fresh, nil
}
