package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"minic/pkg/build"
)

// envPrefix namespaces the environment variables the loader reads, e.g.
// MINIC_OUT_DIR overrides out_dir.
const envPrefix = "MINIC_"

// findProjectFile resolves the project file: an explicit path wins,
// otherwise mini.yaml or mini.yml in the working directory.
func findProjectFile(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, name := range []string{"mini.yaml", "mini.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("no mini.yaml found; use --config to name a project file")
}

// loadProject reads the project file and layers environment variables and
// command-line flags on top. The returned root is the directory the file
// lives in; target sources resolve against it.
func loadProject(explicit string, flags *pflag.FlagSet) (*build.Project, string, error) {
	path, err := findProjectFile(explicit)
	if err != nil {
		return nil, "", err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, "", fmt.Errorf("loading %s: %w", path, err)
	}
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, "", err
	}
	if flags != nil {
		// Flag names use dashes, config keys underscores.
		p := posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, interface{}) {
			return strings.ReplaceAll(key, "-", "_"), value
		})
		if err := k.Load(p, nil); err != nil {
			return nil, "", err
		}
	}

	var project build.Project
	if err := k.Unmarshal("", &project); err != nil {
		return nil, "", fmt.Errorf("parsing %s: %w", path, err)
	}
	root := filepath.Dir(path)
	return &project, root, nil
}
