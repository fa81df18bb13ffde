// Package keys derives local file names and object-store keys from model
// identifiers. The derivation is deterministic and collision-free so that
// list and head operations can be computed from an identifier alone.
package keys

import "strings"

// ArchiveSuffix is the file extension used for archived model artifacts,
// both on disk and in the object store.
const ArchiveSuffix = ".tar.gz"

// Sanitize encodes a model identifier into a single path segment.
// Underscores are escaped first so that distinct identifiers can never
// collide: "a/b" encodes to "a_b" while a literal "a_b" encodes to "a__b".
// The encoding is reversed by Decode.
func Sanitize(id string) string {
	id = strings.ReplaceAll(id, "_", "__")
	return strings.ReplaceAll(id, "/", "_")
}

// Decode reverses Sanitize. It scans left to right: a doubled underscore
// decodes to a literal underscore, a single underscore decodes to a slash.
func Decode(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		if name[i] != '_' {
			b.WriteByte(name[i])
			continue
		}
		if i+1 < len(name) && name[i+1] == '_' {
			b.WriteByte('_')
			i++
			continue
		}
		b.WriteByte('/')
	}
	return b.String()
}

// NormalizePrefix ensures a non-empty key prefix carries exactly one
// trailing slash. An empty prefix stays empty.
func NormalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// ArchiveKey returns the object-store key for an identifier stored as a
// single compressed archive.
func ArchiveKey(prefix, id string) string {
	return prefix + Sanitize(id) + ArchiveSuffix
}

// TreePrefix returns the object-store key prefix under which an identifier
// is stored as an expanded directory tree.
func TreePrefix(prefix, id string) string {
	return prefix + Sanitize(id) + "/"
}

// IdentifierFromKey recovers the model identifier from an object-store key.
// In archive mode only keys ending in ArchiveSuffix map to identifiers; in
// tree mode the first path segment below the prefix names the model.
// The second return value reports whether the key belongs to a model entry.
func IdentifierFromKey(prefix, key string, archive bool) (string, bool) {
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	rest := key[len(prefix):]
	if rest == "" {
		return "", false
	}
	if archive {
		if !strings.HasSuffix(rest, ArchiveSuffix) || strings.Contains(rest, "/") {
			return "", false
		}
		return Decode(strings.TrimSuffix(rest, ArchiveSuffix)), true
	}
	seg, _, found := strings.Cut(rest, "/")
	if !found || seg == "" {
		return "", false
	}
	return Decode(seg), true
}
