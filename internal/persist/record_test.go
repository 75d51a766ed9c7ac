package persist

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/tabcart/internal/catalog"
)

func sample() catalog.Snapshot {
	return catalog.NewSnapshot([]catalog.Item{
		{ID: "1", Name: "Latte", Price: 2, ServingSize: "300ml", AmountInStock: 5},
		{ID: "2", Name: "Bagel", Photo: "https://img/bagel.png", Price: 3.5, ServingSize: "1 pc", AmountInStock: 1, AmountInCart: 2},
	})
}

func TestRecordRoundTrip(t *testing.T) {
	in := Record{Origin: "tab-a", Items: sample()}
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "tab-a", out.Origin)
	if diff := cmp.Diff(in.Items.Items(), out.Items.Items()); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeUsesOriginalFieldNames(t *testing.T) {
	data, err := Encode(Record{Origin: "x", Items: catalog.NewSnapshot([]catalog.Item{{ID: "1", Name: "n", ServingSize: "s", Price: 1}})})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"tabID":"x","items":[{"id":"1","name":"n","price":1,"servingSize":"s","amountInStock":0,"amountInCart":0}]}`,
		string(data))

	data, err = Encode(Record{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(data))
}

func TestDecodeMalformed(t *testing.T) {
	for name, input := range map[string]string{
		"not json":      `{"items":`,
		"missing items": `{"tabID":"a"}`,
		"items object":  `{"items":{"id":"1"}}`,
		"array":         `[1,2]`,
		"bad amount":    `{"items":[{"id":"1","amountInCart":"two"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(input))
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestDecodeNullItemsIsEmpty(t *testing.T) {
	rec, err := Decode([]byte(`{"items":null}`))
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Items.Len())
}

func TestSameItemsIgnoresOrigin(t *testing.T) {
	a, _ := Encode(Record{Origin: "a", Items: sample()})
	b, _ := Encode(Record{Origin: "b", Items: sample()})
	ra, err := Decode(a)
	require.NoError(t, err)
	rb, err := Decode(b)
	require.NoError(t, err)
	assert.True(t, SameItems(ra.Items, rb.Items))

	changed := sample().Items()
	changed[0].AmountInCart = 1
	assert.False(t, SameItems(sample(), catalog.NewSnapshot(changed)))
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "tab-1", Origin([]byte(`{"tabID":"tab-1","items":[]}`)))
	assert.Equal(t, "", Origin([]byte(`{"items":[]}`)))
	assert.Equal(t, "", Origin([]byte(`not json`)))
	assert.Equal(t, "", Origin([]byte(`[1,2]`)))
}
