package storage

import (
	"math"
	"testing"
	"time"

	"github.com/poiesic/pagewise/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorBlob(t *testing.T) {
	vector := []float32{0, -1.5, 3.25, math.MaxFloat32, math.SmallestNonzeroFloat32}

	data := EncodeVector(vector)
	assert.Len(t, data, 20)

	decoded, err := DecodeVector(data)
	require.NoError(t, err)
	assert.Equal(t, vector, decoded)
}

func TestDecodeVectorTruncated(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncatedData)
}

func TestVectorRecordRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := &core.VectorRecord{
		NodeID:     "P1#0",
		DocumentID: "P1",
		ChunkIndex: 0,
		Vector:     []float32{0.1, 0.2, 0.3},
		Text:       "Alpha paragraph.",
		Metadata:   map[string]string{"space_key": "ENG"},
		UpdatedAt:  now,
	}

	decoded, err := UnmarshalVectorRecord(MarshalVectorRecord(record))
	require.NoError(t, err)

	assert.Equal(t, record, decoded)
}

func TestUnmarshalVectorRecordNilMetadata(t *testing.T) {
	data := MarshalVectorRecord(&core.VectorRecord{NodeID: "P1#0", Vector: []float32{1}})

	decoded, err := UnmarshalVectorRecord(data)
	require.NoError(t, err)
	assert.NotNil(t, decoded.Metadata)
}

func TestUnmarshalInvalid(t *testing.T) {
	_, err := UnmarshalVectorRecord([]byte{0x05, 'a'})
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalTurn([]byte{0x7f})
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalCheckpoint(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalSchemaRecord(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = DecodeMetadata("[1,2]")
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestTurnRoundTrip(t *testing.T) {
	turn := &core.ConversationTurn{
		ConversationID: "conv1",
		Index:          3,
		Role:           core.RoleAssistant,
		Content:        "Alpha is the first paragraph.",
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}

	decoded, err := UnmarshalTurn(MarshalTurn(turn))
	require.NoError(t, err)
	assert.Equal(t, turn, decoded)
}

func TestMetadataCodec(t *testing.T) {
	encoded, err := EncodeMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", encoded)

	encoded, err = EncodeMetadata(map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"1","b":"2"}`, encoded)

	decoded, err := DecodeMetadata(encoded)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, decoded)

	empty, err := DecodeMetadata("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTruncatedVectorRecord(t *testing.T) {
	data := MarshalVectorRecord(&core.VectorRecord{
		NodeID:   "P1#0",
		Vector:   []float32{0.5, 0.25},
		Text:     "Alpha paragraph.",
		Metadata: map[string]string{"title": "Alpha"},
	})

	for _, cut := range []int{1, len(data) / 2, len(data) - 1} {
		_, err := UnmarshalVectorRecord(data[:cut])
		assert.ErrorIs(t, err, ErrSerializationFailed, "cut at %d", cut)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	checkpoint := &Checkpoint{
		Name:       "reembed",
		LastNodeID: "P7#3",
		Processed:  250,
		UpdatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	decoded, err := UnmarshalCheckpoint(MarshalCheckpoint(checkpoint))
	require.NoError(t, err)
	assert.Equal(t, checkpoint, decoded)
}

func TestSchemaRecordRoundTrip(t *testing.T) {
	record := SchemaRecord{Dimension: 768, Metric: MetricCosine}

	decoded, err := UnmarshalSchemaRecord(MarshalSchemaRecord(record))
	require.NoError(t, err)
	assert.Equal(t, record, decoded)
}
