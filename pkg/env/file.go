package env

import (
	"bytes"
	"flag"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Sections maps top level keys of a config file to the configs they fill.
type Sections map[string]interface{}

// LoadFile merges the YAML file at path into sections. Flags set on the
// command line keep their values.
func LoadFile(path string, sections Sections) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}
	return Load(data, sections)
}

// Load merges YAML data into sections.
func Load(data []byte, sections Sections) error {
	var doc map[string]yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return errors.Wrap(err, "decode config")
	}
	explicit := make(map[string]string)
	flag.Visit(func(f *flag.Flag) {
		explicit[f.Name] = f.Value.String()
	})
	for name, node := range doc {
		section, ok := sections[name]
		if !ok {
			return errors.Errorf("unknown config section %q", name)
		}
		if err := node.Decode(section); err != nil {
			return errors.Wrapf(err, "config section %q", name)
		}
	}
	for name, val := range explicit {
		if err := flag.Set(name, val); err != nil {
			return errors.Wrapf(err, "restore flag -%s", name)
		}
	}
	return nil
}
