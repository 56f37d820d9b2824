package fs

import (
	"strings"

	"github.com/pkg/errors"
)

// DumpFlags describes the Dump options in force
type DumpFlags int

// DumpFlags definitions
const (
	DumpHeaders DumpFlags = 1 << iota
	DumpBodies
	DumpAuth
)

var dumpFlags = []struct {
	flag DumpFlags
	name string
}{
	{DumpHeaders, "headers"},
	{DumpBodies, "bodies"},
	{DumpAuth, "auth"},
}

// DumpFlagsList is a list of dump flags used in the help
var DumpFlagsList string

func init() {
	var list []string
	for _, info := range dumpFlags {
		list = append(list, info.name)
	}
	DumpFlagsList = strings.Join(list, ",")
}

// String turns a DumpFlags into a string
func (f DumpFlags) String() string {
	var out []string
	for _, info := range dumpFlags {
		if f&info.flag != 0 {
			out = append(out, info.name)
		}
	}
	return strings.Join(out, ",")
}

// Set a DumpFlags as a comma separated list of flags
func (f *DumpFlags) Set(s string) error {
	var flags DumpFlags
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		found := false
		for _, info := range dumpFlags {
			if part == info.name {
				found = true
				flags |= info.flag
				break
			}
		}
		if !found {
			return errors.Errorf("unknown dump flag %q", part)
		}
	}
	*f = flags
	return nil
}

// Type of the value
func (f *DumpFlags) Type() string {
	return "DumpFlags"
}
