package devices

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "embed"

	"github.com/KevinKickass/eposio/internal/types"
)

// BuiltinProfile is the object map used when a device names none.
const BuiltinProfile = "epos-inputs"

//go:embed builtin/epos-inputs.json
var builtinProfileJSON []byte

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

// Load finds <name>.json, <name>.yaml or <name>.yml in the search paths.
// Files shadow the builtin profile of the same name.
func (l *ProfileLoader) Load(name string) (*types.ObjectMapProfile, error) {
	if name == "" {
		name = BuiltinProfile
	}

	if cached, ok := l.cache.Load(name); ok {
		return cached.(*types.ObjectMapProfile), nil
	}

	data, foundPath, err := l.find(name)
	if err != nil {
		return nil, err
	}

	if data == nil {
		if name != BuiltinProfile {
			return nil, fmt.Errorf("object map not found: %s (searched in: %v)", name, l.searchPaths)
		}
		data, foundPath = builtinProfileJSON, "builtin:"+BuiltinProfile
	}

	if ext := filepath.Ext(foundPath); ext == ".yaml" || ext == ".yml" {
		data, err = l.validator.ValidateYAML(data)
	} else {
		err = l.validator.ValidateProfile(data)
	}
	if err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", foundPath, err)
	}

	var profile types.ObjectMapProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	l.cache.Store(name, &profile)

	return &profile, nil
}

func (l *ProfileLoader) find(name string) ([]byte, string, error) {
	for _, searchPath := range l.searchPaths {
		for _, ext := range []string{".json", ".yaml", ".yml"} {
			fullPath := filepath.Join(searchPath, name+ext)
			data, err := os.ReadFile(fullPath)
			if err == nil {
				return data, fullPath, nil
			}
			if !os.IsNotExist(err) {
				return nil, "", fmt.Errorf("failed to read %s: %w", fullPath, err)
			}
		}
	}
	return nil, "", nil
}

func (l *ProfileLoader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
