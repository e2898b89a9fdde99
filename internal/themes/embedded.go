package themes

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed themes/*.toml
var embeddedThemes embed.FS

// DefaultName is the theme used when none is configured
const DefaultName = "dracula"

// GetTheme loads a theme by name. Lookup order:
//  1. <dir>/<name>.toml            (user themes, when dir is set)
//  2. Embedded themes/<name>.toml  (bundled)
//  3. GetDefaultTheme()            (for the default name only)
func GetTheme(dir, name string) (*Theme, error) {
	if name == "" {
		name = DefaultName
	}

	if dir != "" {
		path := filepath.Join(dir, name+".toml")
		if _, err := os.Stat(path); err == nil {
			return LoadTheme(path)
		}
	}

	data, err := embeddedThemes.ReadFile("themes/" + name + ".toml")
	if err == nil {
		theme, err := parseTheme(data)
		if err != nil {
			return nil, fmt.Errorf("embedded theme %q: %w", name, err)
		}
		return theme, nil
	}

	if name != DefaultName {
		return nil, fmt.Errorf("theme %q not found", name)
	}
	return GetDefaultTheme(), nil
}

// ListAvailableThemes returns the bundled theme names plus any in dir
func ListAvailableThemes(dir string) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(entries []fs.DirEntry) {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ".toml")
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	entries, _ := fs.ReadDir(embeddedThemes, "themes")
	add(entries)
	if dir != "" {
		userEntries, _ := os.ReadDir(dir)
		add(userEntries)
	}

	sort.Strings(names)
	return names
}
