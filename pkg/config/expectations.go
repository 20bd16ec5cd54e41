package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/getmockd/expectd/pkg/expectation"
)

// LoadExpectationFile reads one initialization file: a single expectation
// or an array of them, as JSON or YAML (by extension).
func LoadExpectationFile(path string) ([]*expectation.Expectation, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	} else if !json.Valid(data) {
		return nil, fmt.Errorf("%w in file: %s", ErrInvalidJSON, path)
	}

	exps, err := expectation.ParseExpectations(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return exps, nil
}

// yamlToJSON converts a YAML document so it can go through the JSON
// decoders of the expectation model.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return out, nil
}

// LoadExpectations expands patterns against baseDir and loads every
// matching file in sorted order. A pattern without glob characters names a
// file that must exist; a glob that matches nothing is not an error.
func LoadExpectations(patterns []string, baseDir string) ([]*expectation.Expectation, error) {
	var all []*expectation.Expectation
	for _, pattern := range patterns {
		resolved := resolvePath(baseDir, pattern)

		files := []string{resolved}
		if hasMeta(pattern) {
			matches, err := doublestar.FilepathGlob(resolved, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("expanding glob pattern %q: %w", pattern, err)
			}
			sort.Strings(matches)
			files = matches
		}

		for _, file := range files {
			exps, err := LoadExpectationFile(file)
			if err != nil {
				return nil, err
			}
			all = append(all, exps...)
		}
	}
	return all, nil
}

// InitializationExpectations loads the configured initialization files.
func (c *ServerConfiguration) InitializationExpectations() ([]*expectation.Expectation, error) {
	return LoadExpectations(c.InitializationFiles, c.BaseDir())
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
