package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogSubsets(t *testing.T) {
	for _, f := range Default {
		assert.True(t, All.Contains(f), "default field %q missing from All", f)
	}
	for _, f := range Metadata {
		assert.True(t, All.Contains(f), "metadata field %q missing from All", f)
	}
	assert.False(t, Default.Contains(AccessURL), "accessUrl must be opt-in")
	assert.False(t, Default.Contains(BondProvider), "bondProvider must be opt-in")
	assert.True(t, Metadata.Contains(AccessURL))
	assert.Len(t, All, len(Core)+3)
}

func TestSet_Overlaps(t *testing.T) {
	tests := []struct {
		name  string
		set   Set
		other Set
		want  bool
	}{
		{"single match", Set{Bucket, AccessURL}, AccessID, true},
		{"no match", Set{Bucket, Name}, AccessID, false},
		{"empty set", Set{}, Metadata, false},
		{"empty other", Set{Size}, Set{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.set.Overlaps(tt.other))
		})
	}
}

func TestSet_OrDefault(t *testing.T) {
	assert.Equal(t, Default, Set(nil).OrDefault())
	assert.Equal(t, Default, Set{}.OrDefault())
	assert.Equal(t, Set{Size}, Set{Size}.OrDefault())

	// The returned default must not alias the package-level slice.
	d := Set(nil).OrDefault()
	d[0] = "mutated"
	assert.Equal(t, GSURI, Default[0])
}

func TestSet_Validate(t *testing.T) {
	require.NoError(t, All.Validate())
	require.NoError(t, Set{}.Validate())

	err := Set{Size, "meow", "woof"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'meow', 'woof'")
	assert.Contains(t, err.Error(), "Supported fields are")
	assert.Equal(t, []string{"meow", "woof"}, Set{Size, "meow", "woof"}.Invalid())
}
