package storage

import (
	"bytes"
	"testing"

	"rulebase/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	rules := []*core.Rule{newStoredRule("CR-SN-1", "1.0.0"), newStoredRule("CR-SN-1", "1.1.0")}
	rules[1].Active = false

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, rules))

	snap, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	require.Len(t, snap.Rules, 2)
	assert.Equal(t, "1.1.0", snap.Rules[1].Version)
	assert.False(t, snap.Rules[1].Active)
	assert.Equal(t, rules[0].Name, snap.Rules[0].Name)
	assert.Equal(t, rules[0].Rules, snap.Rules[0].Rules)
	assert.ElementsMatch(t, rules[0].Tags, snap.Rules[0].Tags)
	assert.False(t, snap.CreatedAt.IsZero())
}

func TestSnapshot_RejectsUnknownFormat(t *testing.T) {
	data, err := msgpack.Marshal(&Snapshot{FormatVersion: 99})
	require.NoError(t, err)

	_, err = ReadSnapshot(bytes.NewReader(data))
	assert.ErrorContains(t, err, "unsupported snapshot format version 99")
}

func TestSnapshot_Garbage(t *testing.T) {
	_, err := ReadSnapshot(bytes.NewReader([]byte{0xc1, 0x00}))
	assert.Error(t, err)
}
