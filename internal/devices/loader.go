package devices

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevinKickass/boardlink/internal/types"
	"gopkg.in/yaml.v3"
)

var ErrProfileNotFound = errors.New("profile not found")

// profileExtensions are tried in order for every search path
var profileExtensions = []string{".yaml", ".yml", ".json"}

// ProfileLoader reads board profiles and shield modules from the search paths.
// Profiles are cached by name; shields are read on every composition.
type ProfileLoader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewProfileLoader(searchPaths []string) (*ProfileLoader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &ProfileLoader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

func (l *ProfileLoader) SearchPaths() []string {
	return l.searchPaths
}

// Load returns the named board profile, without shields merged in
func (l *ProfileLoader) Load(name string) (*types.BoardProfileDefinition, error) {
	if cached, ok := l.cache.Load(name); ok {
		return cached.(*types.BoardProfileDefinition), nil
	}

	data, foundPath, err := l.read(name)
	if err != nil {
		return nil, err
	}

	if err := l.validator.ValidateProfile(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", foundPath, err)
	}

	var profile types.BoardProfileDefinition
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	l.cache.Store(name, &profile)

	return &profile, nil
}

// LoadShield returns the named shield module
func (l *ProfileLoader) LoadShield(name string) (*types.ShieldDefinition, error) {
	data, foundPath, err := l.read(name)
	if err != nil {
		return nil, err
	}

	if err := l.validator.ValidateShield(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", foundPath, err)
	}

	var shield types.ShieldDefinition
	if err := json.Unmarshal(data, &shield); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shield %s: %w", foundPath, err)
	}
	return &shield, nil
}

func (l *ProfileLoader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}

// read finds name in the search paths and returns it as JSON
func (l *ProfileLoader) read(name string) ([]byte, string, error) {
	for _, searchPath := range l.searchPaths {
		for _, ext := range profileExtensions {
			fullPath := filepath.Join(searchPath, name+ext)
			data, err := os.ReadFile(fullPath)
			if err != nil {
				continue
			}
			if ext == ".json" {
				return data, fullPath, nil
			}
			converted, err := yamlToJSON(data)
			if err != nil {
				return nil, fullPath, fmt.Errorf("failed to parse %s: %w", fullPath, err)
			}
			return converted, fullPath, nil
		}
	}

	return nil, "", fmt.Errorf("%w: %s (searched in: %v)", ErrProfileNotFound, name, l.searchPaths)
}

// yamlToJSON re-encodes a YAML document so one schema covers both formats
func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
