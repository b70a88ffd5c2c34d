// Package content holds the static copy of the site: intro, technologies,
// experience and education.
package content

import (
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"
)

//go:embed default.toml
var defaultContent []byte

type Site struct {
	Name         string     `toml:"name"`
	Tagline      string     `toml:"tagline"`
	About        string     `toml:"about"`
	Technologies []string   `toml:"technologies"`
	Experience   []Timeline `toml:"experience"`
	Education    []Timeline `toml:"education"`
}

// Timeline is one line of the experience or education panel.
type Timeline struct {
	Period string `toml:"period"`
	Title  string `toml:"title"`
}

// Default returns the built-in site copy.
func Default() *Site {
	site, err := parse(defaultContent)
	if err != nil {
		panic(fmt.Sprintf("content: embedded default.toml is invalid: %v", err))
	}
	return site
}

// Load reads site copy from a TOML file. An empty path returns Default().
func Load(path string) (*Site, error) {
	if path == "" {
		return Default(), nil
	}
	var site Site
	if _, err := toml.DecodeFile(path, &site); err != nil {
		return nil, fmt.Errorf("failed to load content from %s: %w", path, err)
	}
	return &site, nil
}

func parse(data []byte) (*Site, error) {
	var site Site
	if _, err := toml.Decode(string(data), &site); err != nil {
		return nil, err
	}
	return &site, nil
}
