// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of
// plain-text files. The file name is the key name and the trimmed file
// contents are the value.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/cite-engine/pkg/types"
)

// Key file names understood by Apply.
const (
	AnthropicAPIKey       = "anthropic-api-key"
	OpenAIAPIKey          = "openai-api-key"
	SemanticScholarAPIKey = "semantic-scholar-api-key"
	OpenAlexEmail         = "openalex-email"
)

// Load reads all files in dir and returns a map of file name to trimmed
// contents. A missing directory is not an error. Unreadable files are
// logged and skipped.
func Load(dir string, logger *zap.Logger) (map[string]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// Apply fills credentials in cfg that are still empty from secrets. Values
// already set by the config file or the environment win.
func Apply(cfg *types.Config, secrets map[string]string) {
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case types.ProviderClaude:
			cfg.LLM.APIKey = secrets[AnthropicAPIKey]
		case types.ProviderOpenAI:
			cfg.LLM.APIKey = secrets[OpenAIAPIKey]
		}
	}
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = secrets[SemanticScholarAPIKey]
	}
	if cfg.Search.Email == "" {
		cfg.Search.Email = secrets[OpenAlexEmail]
	}
}
