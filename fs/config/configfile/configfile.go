// Package configfile reads the sharepkg YAML config file
//
// The file is a flat map of option names to values, e.g.
//
//	portal_url: https://www.arcgis.com
//	username: gis_admin
//	chunk_size: 10M
//
// Values are kept as strings and parsed by configstruct like any
// other config source.
package configfile

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/config/configmap"
	yaml "gopkg.in/yaml.v2"
)

// DefaultPath is where the config file is looked for if no path is
// given
const DefaultPath = "~/.config/sharepkg/sharepkg.yaml"

// ShellExpand replaces a leading "~" with the home directory and
// expands all environment variables afterwards.
func ShellExpand(s string) string {
	if s != "" {
		if s[0] == '~' {
			newS, err := homedir.Expand(s)
			if err == nil {
				s = newS
			}
		}
		s = os.ExpandEnv(s)
	}
	return s
}

// Load reads the config file at path returning its settings.
//
// A missing file is not an error when path is the default, it just
// gives an empty config.
func Load(path string) (configmap.Simple, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	path = ShellExpand(path)
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			fs.Debugf(nil, "Config file %q not found - using defaults", path)
			return configmap.Simple{}, nil
		}
		return nil, errors.Wrap(err, "failed to read config file")
	}
	out, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %q", filepath.Base(path))
	}
	fs.Debugf(nil, "Using config file from %q", path)
	return out, nil
}

// Parse parses YAML config data
func Parse(data []byte) (configmap.Simple, error) {
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(configmap.Simple, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case nil:
			out[k] = ""
		case map[interface{}]interface{}, []interface{}:
			return nil, errors.Errorf("config item %q must be a single value", k)
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out, nil
}
