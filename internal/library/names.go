package library

import (
	"strconv"
	"strings"
)

// ResolveName returns desired unchanged if no sibling uses it. Otherwise it
// splits desired at the last '.' into base and extension and returns the first
// "base (n).ext" for n = 1, 2, ... that no sibling uses. The result is
// deterministic for a given sibling set.
func ResolveName(desired string, siblings map[string]struct{}) string {
	if _, taken := siblings[desired]; !taken {
		return desired
	}
	base, ext := splitExt(desired)
	for n := 1; ; n++ {
		candidate := base + " (" + strconv.Itoa(n) + ")" + ext
		if _, taken := siblings[candidate]; !taken {
			return candidate
		}
	}
}

// splitExt splits name into base and extension, the extension keeping its dot.
// A name whose only dot is leading has no extension.
func splitExt(name string) (base, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// nameSet builds a sibling set from a list of names.
func nameSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
