package sandbox

import (
	"slices"
	"time"
)

// Policy defines what a script may reach and how long it may run.
type Policy struct {
	Timeout        time.Duration // wall-clock budget per run, 0 disables
	MaxOutputBytes int           // per stream, 0 means unlimited
	Packages       []string      // stdlib packages exported to every script
	HostPackages   []string      // added when a host application is attached
}

// DefaultPolicy returns safe defaults for script execution.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:        10 * time.Second,
		MaxOutputBytes: 1 << 20,
		Packages: []string{
			"bytes",
			"container/heap",
			"container/list",
			"encoding/json",
			"errors",
			"fmt",
			"log",
			"math",
			"math/bits",
			"math/cmplx",
			"regexp",
			"sort",
			"strconv",
			"strings",
			"text/tabwriter",
			"time",
			"unicode",
			"unicode/utf8",
		},
		HostPackages: []string{
			"bufio",
			"io",
			"io/fs",
			"os",
			"path/filepath",
		},
	}
}

// IsPackageAllowed reports whether a stdlib package is exported to a script.
func (p Policy) IsPackageAllowed(path string, hostAttached bool) bool {
	if slices.Contains(p.Packages, path) {
		return true
	}
	return hostAttached && slices.Contains(p.HostPackages, path)
}
