package krun

import (
	"fmt"
	"sort"
	"strings"

	"github.com/krunbox/krunbox/internal/model"
)

// NullTerminated returns a copy of s with a trailing NUL byte, the layout a
// C string pointer expects. It fails if s already contains a NUL byte, the
// single validation rule applied to every string crossing the boundary.
func NullTerminated(s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, fmt.Errorf("%q: %w", s, model.ErrInvalidString)
	}

	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return buf, nil
}

// NullTerminatedAll converts every string into a NUL-terminated buffer,
// failing on the first string with an embedded NUL byte.
func NullTerminatedAll(ss []string) ([][]byte, error) {
	bufs := make([][]byte, 0, len(ss))
	for _, s := range ss {
		buf, err := NullTerminated(s)
		if err != nil {
			return nil, err
		}
		bufs = append(bufs, buf)
	}
	return bufs, nil
}

// CheckStrings validates that none of the strings contains an embedded NUL
// byte, without building buffers. Used to validate before any native call is
// issued so a failure never leaves a context half-configured.
func CheckStrings(ss ...string) error {
	for _, s := range ss {
		if strings.IndexByte(s, 0) >= 0 {
			return fmt.Errorf("%q: %w", s, model.ErrInvalidString)
		}
	}
	return nil
}

// EnvStrings converts an environment mapping into "NAME=VALUE" entries. The
// order is not contractually meaningful, entries are sorted by name so the
// result is deterministic.
func EnvStrings(env map[string]string) []string {
	entries := make([]string, 0, len(env))
	for k, v := range env {
		entries = append(entries, k+"="+v)
	}
	sort.Strings(entries)
	return entries
}

// JoinPortMap joins "host:guest" entries with commas into the single string
// the library expects. An empty list yields an empty string, which is still
// passed to the native call.
func JoinPortMap(ports []string) string {
	return strings.Join(ports, ",")
}
