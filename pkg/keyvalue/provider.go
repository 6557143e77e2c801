// Copyright 2025 UMH Systems GmbH
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

package keyvalue

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hesperia-light/hesperia-core/pkg/constants"
	"github.com/hesperia-light/hesperia-core/pkg/ctxutil"
	"github.com/hesperia-light/hesperia-core/pkg/env"
	"github.com/hesperia-light/hesperia-core/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// GlobalSection holds keys handed to every module.
const GlobalSection = "global"

// Provider supplies the configuration of a named module.
type Provider interface {
	Configuration(ctx context.Context, module string) (Configuration, error)
}

// StaticProvider serves the same configuration to every module.
type StaticProvider struct {
	Config Configuration
}

func (p StaticProvider) Configuration(_ context.Context, module string) (Configuration, error) {
	return ForModule(p.Config, module), nil
}

// ForModule narrows c to the global section and the module's own section.
func ForModule(c Configuration, module string) Configuration {
	return c.Subset(GlobalSection).Merge(c.Subset(module))
}

// FileProvider reads a YAML file on every request, so edits apply to the
// next module that starts. Nested maps become dotted keys. Environment
// variables named HESPERIA_<SECTION>_<KEY> override file values.
type FileProvider struct {
	path   string
	mu     *ctxutil.Mutex
	logger *zap.SugaredLogger
}

// NewFileProvider returns a provider for path, or for the default path when
// path is empty.
func NewFileProvider(path string) *FileProvider {
	if path == "" {
		path = constants.DefaultConfigPath
	}

	return &FileProvider{
		path:   path,
		mu:     ctxutil.NewMutex(),
		logger: logger.For(logger.ComponentConfiguration),
	}
}

func (p *FileProvider) Configuration(ctx context.Context, module string) (Configuration, error) {
	if err := p.mu.Lock(ctx); err != nil {
		return Configuration{}, fmt.Errorf("failed to lock configuration: %w", err)
	}
	defer p.mu.Unlock()

	raw, err := os.ReadFile(p.path)
	if err != nil {
		return Configuration{}, fmt.Errorf("failed to read configuration %s: %w", p.path, err)
	}

	values, err := ParseYAML(raw)
	if err != nil {
		return Configuration{}, fmt.Errorf("failed to parse configuration %s: %w", p.path, err)
	}

	for k, v := range EnvOverrides() {
		values[k] = v
	}

	cfg := ForModule(NewConfiguration(values), module)
	p.logger.Debugf("Loaded %d keys for module %s from %s", cfg.Len(), module, p.path)

	return cfg, nil
}

// EnvOverrides maps HESPERIA_VEHICLE_POSX=3 to vehicle.posx=3.
func EnvOverrides() map[string]string {
	out := make(map[string]string)
	for k, v := range env.WithPrefix(constants.EnvOverridePrefix) {
		out[strings.ToLower(strings.ReplaceAll(k, "_", "."))] = v
	}

	return out
}

// ParseYAML flattens a YAML document of nested maps into dotted keys.
// Sequences become comma separated values.
func ParseYAML(raw []byte) (map[string]string, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	out := make(map[string]string)
	flatten("", doc, out)

	return out, nil
}

func flatten(prefix string, node interface{}, out map[string]string) {
	switch v := node.(type) {
	case map[string]interface{}:
		for k, child := range v {
			flatten(join(prefix, k), child, out)
		}
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}

		out[prefix] = strings.Join(parts, ",")
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(v)
	}
}

func join(prefix, key string) string {
	key = strings.ToLower(key)
	if prefix == "" {
		return key
	}

	return prefix + "." + key
}

// Dump renders c as sorted key=value lines.
func Dump(c Configuration) string {
	var b strings.Builder
	for _, k := range c.Keys() {
		v, _ := c.Value(k)
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}

	return b.String()
}
