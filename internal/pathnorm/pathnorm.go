// Package pathnorm canonicalizes path strings for scope comparison.
//
// Normalization is purely lexical. POSIX and Windows-style inputs map onto a
// single forward-slash form with a lower-case drive prefix, so two spellings
// of the same location compare equal. Nothing here touches the filesystem.
package pathnorm

import (
	"path"
	"strings"
	"unicode"
)

// HasDriveLetter reports whether s begins with a drive prefix such as "C:".
func HasDriveLetter(s string) bool {
	if len(s) < 2 || s[1] != ':' {
		return false
	}
	c := s[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// NormalizeForScope maps input onto a canonical absolute path.
// Relative inputs are treated as rooted and ".." never climbs above the root.
// The result is a fixed point: normalizing it again returns it unchanged.
func NormalizeForScope(input string) string {
	p := normalizeOnce(input)
	// cleaning can expose whitespace ("/a /" -> "/a "), so repeat until
	// stable; each further pass only shortens the string
	for {
		next := normalizeOnce(p)
		if next == p {
			return p
		}
		p = next
	}
}

func trimSpace(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})
}

func normalizeOnce(input string) string {
	p := strings.ReplaceAll(trimSpace(input), `\`, "/")
	if p == "" {
		return "/"
	}

	var normalized string
	if HasDriveLetter(p) {
		normalized = normalizeDrive(p)
	} else {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		normalized = path.Clean(p)
	}

	if len(normalized) > 1 && strings.HasSuffix(normalized, "/") {
		normalized = normalized[:len(normalized)-1]
	}
	return normalized
}

// normalizeDrive cleans the remainder after the drive prefix on its own so
// ".." clamps at the drive root instead of consuming the drive.
func normalizeDrive(p string) string {
	drive := strings.ToLower(p[:1]) + ":"
	rest := p[2:]
	if rest == "" {
		return drive
	}

	// drive-relative ("c:foo") stays relative to the drive
	if !strings.HasPrefix(rest, "/") {
		return drive + strings.TrimPrefix(path.Clean("/"+rest), "/")
	}
	return drive + path.Clean(rest)
}
