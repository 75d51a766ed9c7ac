package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotJSONRoundTrip(t *testing.T) {
	snap := NewSnapshot([]Item{
		{ID: "1", Name: "Croissant", Photo: "https://img.example/c.png", Price: 2, ServingSize: "1 pc", AmountInStock: 5, AmountInCart: 1},
		{ID: "2", Name: "Tea", Price: 0.5, ServingSize: "250 ml", AmountInStock: 10},
	})

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var back Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, snap.Equal(back))
}

func TestEmptySnapshotMarshalsAsArray(t *testing.T) {
	data, err := json.Marshal(Snapshot{})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	var back Snapshot
	require.NoError(t, json.Unmarshal([]byte(`null`), &back))
	assert.Equal(t, 0, back.Len())
}

func TestPhotoToleratesNonStringValues(t *testing.T) {
	raw := `[{"id":"1","name":"Bun","photo":{},"price":1,"servingSize":"","amountInStock":1,"amountInCart":0},
	         {"id":"2","name":"Roll","photo":null,"price":1,"servingSize":"","amountInStock":1,"amountInCart":0}]`

	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &snap))
	require.Equal(t, 2, snap.Len())
	assert.Equal(t, Photo(""), snap.At(0).Photo)
	assert.Equal(t, Photo(""), snap.At(1).Photo)
}
