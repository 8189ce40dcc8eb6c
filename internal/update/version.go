package update

import (
	"strconv"
	"strings"
)

// PackVersion encodes "v1.2.3" as 1<<16 | 2<<8 | 3.
//
// Anything that is not exactly three dot separated numbers packs to 0, so a
// malformed tag compares equal to "0.0.0". Components above 255 are not
// rejected; they overlap the neighbouring field the same way the desktop
// release checker always packed them.
func PackVersion(v string) uint32 {
	parts := strings.Split(strings.TrimLeft(strings.TrimSpace(v), "v"), ".")
	if len(parts) != 3 {
		return 0
	}

	var fields [3]uint32
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return 0
		}
		fields[i] = uint32(n)
	}
	return fields[0]<<16 | fields[1]<<8 | fields[2]
}

// CompareVersions reports whether remote is newer than local
func CompareVersions(remote, local string) bool {
	return PackVersion(remote) > PackVersion(local)
}

// DisplayVersion strips the leading "v" of a release tag
func DisplayVersion(tag string) string {
	return strings.TrimLeft(strings.TrimSpace(tag), "v")
}
