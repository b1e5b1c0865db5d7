package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	requireT := require.New(t)

	r1, err := New(1, map[string]any{"name": "a", "value": 1})
	requireT.NoError(err)
	r2, err := New(1, map[string]any{"value": 1, "name": "a"})
	requireT.NoError(err)
	r3, err := New(1, map[string]any{"name": "a", "value": 2})
	requireT.NoError(err)
	r4, err := New(2, map[string]any{"name": "a", "value": 1})
	requireT.NoError(err)

	requireT.Equal(r1.Checksum(), r2.Checksum())
	requireT.NotEqual(r1.Checksum(), r3.Checksum())
	requireT.NotEqual(r1.Checksum(), r4.Checksum())
	requireT.NotZero(r1.Checksum())
}

func TestMarshalUnmarshal(t *testing.T) {
	requireT := require.New(t)

	r, err := New(7, map[string]any{
		"text":  "hello",
		"flag":  true,
		"list":  []any{"x", 2},
		"inner": map[string]any{"k": "v"},
	})
	requireT.NoError(err)

	data, err := r.Marshal()
	requireT.NoError(err)

	r2, err := Unmarshal(data)
	requireT.NoError(err)
	requireT.EqualValues(7, r2.What())
	requireT.Equal(r.Checksum(), r2.Checksum())
	requireT.Equal(r.Fields(), r2.Fields())

	v, exists := r2.Field("text")
	requireT.True(exists)
	requireT.Equal("hello", v)

	_, exists = r2.Field("missing")
	requireT.False(exists)
}

func TestUnmarshalInvalid(t *testing.T) {
	requireT := require.New(t)

	_, err := Unmarshal([]byte{0xff, 0xff})
	requireT.Error(err)

	_, err = Unmarshal(nil)
	requireT.Error(err)
}

func TestString(t *testing.T) {
	requireT := require.New(t)

	r, err := New(3, map[string]any{"b": "2", "a": "1"})
	requireT.NoError(err)
	requireT.Equal("Record what=3 fields=map[a:1 b:2]", r.String())
}
