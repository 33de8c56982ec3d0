// Package lang holds the user-facing message catalog. Messages live in a
// flat YAML map and support {name} placeholder substitution.
package lang

import (
	"os"
	"strings"
	"sync"

	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var (
	mu       sync.RWMutex
	messages map[string]string
)

// Load reads the catalog. A missing file leaves the catalog empty so every
// lookup falls back to its key, which keeps the bot usable.
func Load(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		zlog.Warn().Msgf("[lang] could not read %s: %v — using raw keys", path, err)
		mu.Lock()
		messages = make(map[string]string)
		mu.Unlock()
		return
	}

	m := make(map[string]string)
	if err := yaml.Unmarshal(data, &m); err != nil {
		zlog.Fatal().Msgf("[lang] failed to parse %s: %v", path, err)
	}

	mu.Lock()
	messages = m
	mu.Unlock()

	zlog.Info().Msgf("[lang] loaded %d message keys from %s", len(m), path)
}

// T resolves a message key, substituting {name} placeholders from the
// name/value pairs.
func T(key string, pairs ...string) string {
	mu.RLock()
	s, ok := messages[key]
	mu.RUnlock()

	if !ok {
		return "{" + key + "}"
	}

	for j := 0; j+1 < len(pairs); j += 2 {
		s = strings.ReplaceAll(s, "{"+pairs[j]+"}", pairs[j+1])
	}
	return s
}
