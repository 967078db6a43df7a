package domain

import (
	"strconv"
	"strings"
)

// IsNewerVersion reports whether latest is newer than current using an
// ordinal major.minor.patch comparison. Missing or non-numeric parts count as 0.
func IsNewerVersion(latest, current string) bool {
	l := versionParts(latest)
	c := versionParts(current)

	for i := range l {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}

	return false
}

func versionParts(v string) [3]int {
	var parts [3]int
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	for i, p := range strings.SplitN(v, ".", 3) {
		if i >= 3 {
			break
		}
		n, _ := strconv.Atoi(strings.TrimSpace(p))
		parts[i] = n
	}

	return parts
}
