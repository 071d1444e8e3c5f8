package uidset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompress(t *testing.T) {
	tests := []struct {
		name string
		in   []uint32
		want string
	}{
		{"empty", nil, ""},
		{"single", []uint32{5}, "5"},
		{"spec example", []uint32{1, 2, 3, 5, 7, 8}, "1:3,5,7:8"},
		{"unsorted with dupes", []uint32{3, 1, 2, 2, 1}, "1:3"},
		{"all singletons", []uint32{1, 3, 5}, "1,3,5"},
		{"one big run", []uint32{10, 11, 12, 13}, "10:13"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compress(tt.in))
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := [][]uint32{
		{1, 2, 3, 5, 7, 8},
		{42},
		nil,
		{9, 2, 2, 5, 6, 7, 1},
	}
	for _, uids := range tests {
		compressed := Compress(uids)
		parsed, err := Parse(compressed)
		assert.NoError(t, err)
		assert.Equal(t, sortDedup(uids), parsed)
	}
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("abc")
	assert.Error(t, err)
}

func TestChunk(t *testing.T) {
	uids := make([]uint32, 20)
	for i := range uids {
		uids[i] = uint32(i*2 + 1) // all odd, no runs -> 20 singleton terms
	}
	chunks := Chunk(uids, 6)
	assert.Len(t, chunks, 4) // ceil(20/6)
	assert.Equal(t, "1,3,5,7,9,11", chunks[0])
}

func TestChunkDefaultSize(t *testing.T) {
	uids := []uint32{1, 2, 3, 4, 5, 6, 7}
	chunks := Chunk(uids, 0)
	assert.Equal(t, []string{"1:7"}, chunks)
}
