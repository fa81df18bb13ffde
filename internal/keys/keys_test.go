package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"plain", "model", "model"},
		{"org and name", "org/demo-model", "org_demo-model"},
		{"underscore in name", "org/demo_model", "org_demo__model"},
		{"underscore in org", "my_org/model", "my__org_model"},
		{"dots and dashes", "meta-llama/Llama-3.1-8B", "meta-llama_Llama-3.1-8B"},
		{"leading underscore", "_private/model", "___private_model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.id)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.id, Decode(got), "decode must reverse sanitize")
		})
	}
}

func TestSanitizeCollisionFree(t *testing.T) {
	// These identifiers collide under a naive slash-to-underscore mapping.
	a := Sanitize("a/b")
	b := Sanitize("a_b")
	require.NotEqual(t, a, b)

	c := Sanitize("a_/b")
	d := Sanitize("a/_b")
	require.NotEqual(t, c, d)
	assert.Equal(t, "a_/b", Decode(c))
	assert.Equal(t, "a/_b", Decode(d))
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "models/", NormalizePrefix("models"))
	assert.Equal(t, "models/", NormalizePrefix("models/"))
	assert.Equal(t, "a/b/", NormalizePrefix("/a/b/"))
	assert.Equal(t, "", NormalizePrefix(""))
	assert.Equal(t, "", NormalizePrefix("/"))
}

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "models/org_demo-model.tar.gz", ArchiveKey("models/", "org/demo-model"))
	assert.Equal(t, "org_demo-model.tar.gz", ArchiveKey("", "org/demo-model"))
}

func TestTreePrefix(t *testing.T) {
	assert.Equal(t, "models/org_demo-model/", TreePrefix("models/", "org/demo-model"))
}

func TestIdentifierFromKey(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		key     string
		archive bool
		want    string
		ok      bool
	}{
		{"archive key", "models/", "models/org_demo-model.tar.gz", true, "org/demo-model", true},
		{"archive wrong suffix", "models/", "models/org_demo-model.zip", true, "", false},
		{"archive nested key ignored", "models/", "models/a/b.tar.gz", true, "", false},
		{"archive foreign prefix", "models/", "other/x.tar.gz", true, "", false},
		{"tree file", "models/", "models/org_demo-model/config.json", false, "org/demo-model", true},
		{"tree nested file", "models/", "models/org_demo-model/sub/weights.bin", false, "org/demo-model", true},
		{"tree bare key", "models/", "models/loose-object", false, "", false},
		{"empty rest", "models/", "models/", false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := IdentifierFromKey(tt.prefix, tt.key, tt.archive)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
