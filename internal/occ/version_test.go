package occ

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVersionIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		v := NewVersion()
		require.Len(t, v, 16)
		require.False(t, seen[v.String()], "minted the same token twice")
		seen[v.String()] = true
	}
}

func TestVersionEqual(t *testing.T) {
	v := NewVersion()

	clone := make(Version, len(v))
	copy(clone, v)

	assert.True(t, v.Equal(clone))
	assert.False(t, v.Equal(NewVersion()))
	assert.False(t, v.Equal(nil))
	assert.True(t, Version(nil).Equal(Version{}))
}

func TestVersionIsZero(t *testing.T) {
	assert.True(t, Version(nil).IsZero())
	assert.True(t, Version{}.IsZero())
	assert.False(t, NewVersion().IsZero())
}

func TestVersionJSONRoundTrip(t *testing.T) {
	v := NewVersion()

	data, err := json.Marshal(v)
	require.NoError(t, err)

	var got Version
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, v.Equal(got))
}

func TestChangeSetEmptyMarshalsToIterableDocument(t *testing.T) {
	data, err := json.Marshal(ChangeSet{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"changes":[]}`, string(data))

	var got ChangeSet
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, got.Empty())
}

func TestChangeSetRoundTrip(t *testing.T) {
	before := "555-1212"
	after := "555-1213"

	var cs ChangeSet
	cs.Append("Phone", &before, &after)
	cs.Append("City", nil, &after)

	data, err := json.Marshal(cs)
	require.NoError(t, err)

	var got ChangeSet
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got.Changes, 2)
	assert.Equal(t, "Phone", got.Changes[0].Property)
	assert.Equal(t, before, *got.Changes[0].Old)
	assert.Equal(t, after, *got.Changes[0].New)
	assert.Nil(t, got.Changes[1].Old)
}
