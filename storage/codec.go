package storage

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/pagewise/core"
)

// MUS serializers for the values BadgerDB stores. Fields are written in
// declaration order; appending a field at the end of a struct is the only
// layout change old data survives.

var (
	vectorMUS   = ord.NewSliceSer[float32](raw.Float32)
	metadataMUS = ord.NewMapSer[string, string](ord.String, ord.String)
)

// Timestamps are stored as Unix microseconds.
type timeMicroMUS struct{}

func (timeMicroMUS) Marshal(v time.Time, bs []byte) int {
	return varint.Int64.Marshal(v.UnixMicro(), bs)
}

func (timeMicroMUS) Unmarshal(bs []byte) (time.Time, int, error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

func (timeMicroMUS) Size(v time.Time) int {
	return varint.Int64.Size(v.UnixMicro())
}

var timeMUS = timeMicroMUS{}

type intMUS struct{}

func (intMUS) Marshal(v int, bs []byte) int { return varint.Int64.Marshal(int64(v), bs) }

func (intMUS) Unmarshal(bs []byte) (int, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	return int(v), n, err
}

func (intMUS) Size(v int) int { return varint.Int64.Size(int64(v)) }

var countMUS = intMUS{}

// VectorRecordMUS serializes core.VectorRecord.
var VectorRecordMUS = vectorRecordMUS{}

type vectorRecordMUS struct{}

func (vectorRecordMUS) Marshal(v core.VectorRecord, bs []byte) (n int) {
	n = ord.String.Marshal(v.NodeID, bs)
	n += ord.String.Marshal(v.DocumentID, bs[n:])
	n += countMUS.Marshal(v.ChunkIndex, bs[n:])
	n += vectorMUS.Marshal(v.Vector, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += metadataMUS.Marshal(v.Metadata, bs[n:])
	return n + timeMUS.Marshal(v.UpdatedAt, bs[n:])
}

func (vectorRecordMUS) Unmarshal(bs []byte) (v core.VectorRecord, n int, err error) {
	v.NodeID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.DocumentID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkIndex, n1, err = countMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Vector, n1, err = vectorMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata, n1, err = metadataMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (vectorRecordMUS) Size(v core.VectorRecord) (size int) {
	size = ord.String.Size(v.NodeID)
	size += ord.String.Size(v.DocumentID)
	size += countMUS.Size(v.ChunkIndex)
	size += vectorMUS.Size(v.Vector)
	size += ord.String.Size(v.Text)
	size += metadataMUS.Size(v.Metadata)
	return size + timeMUS.Size(v.UpdatedAt)
}

// TurnMUS serializes core.ConversationTurn.
var TurnMUS = turnMUS{}

type turnMUS struct{}

func (turnMUS) Marshal(v core.ConversationTurn, bs []byte) (n int) {
	n = ord.String.Marshal(v.ConversationID, bs)
	n += varint.Int64.Marshal(v.Index, bs[n:])
	n += ord.String.Marshal(string(v.Role), bs[n:])
	n += ord.String.Marshal(v.Content, bs[n:])
	return n + timeMUS.Marshal(v.CreatedAt, bs[n:])
}

func (turnMUS) Unmarshal(bs []byte) (v core.ConversationTurn, n int, err error) {
	v.ConversationID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Index, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var role string
	role, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Role = core.Role(role)
	v.Content, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CreatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (turnMUS) Size(v core.ConversationTurn) (size int) {
	size = ord.String.Size(v.ConversationID)
	size += varint.Int64.Size(v.Index)
	size += ord.String.Size(string(v.Role))
	size += ord.String.Size(v.Content)
	return size + timeMUS.Size(v.CreatedAt)
}

// CheckpointMUS serializes Checkpoint.
var CheckpointMUS = checkpointMUS{}

type checkpointMUS struct{}

func (checkpointMUS) Marshal(v Checkpoint, bs []byte) (n int) {
	n = ord.String.Marshal(v.Name, bs)
	n += ord.String.Marshal(v.LastNodeID, bs[n:])
	n += countMUS.Marshal(v.Processed, bs[n:])
	return n + timeMUS.Marshal(v.UpdatedAt, bs[n:])
}

func (checkpointMUS) Unmarshal(bs []byte) (v Checkpoint, n int, err error) {
	v.Name, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.LastNodeID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Processed, n1, err = countMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (checkpointMUS) Size(v Checkpoint) (size int) {
	size = ord.String.Size(v.Name)
	size += ord.String.Size(v.LastNodeID)
	size += countMUS.Size(v.Processed)
	return size + timeMUS.Size(v.UpdatedAt)
}

// SchemaRecord is the dimension and metric a vector table was created with.
type SchemaRecord struct {
	Dimension int
	Metric    Metric
}

// SchemaRecordMUS serializes SchemaRecord.
var SchemaRecordMUS = schemaRecordMUS{}

type schemaRecordMUS struct{}

func (schemaRecordMUS) Marshal(v SchemaRecord, bs []byte) (n int) {
	n = countMUS.Marshal(v.Dimension, bs)
	return n + ord.String.Marshal(string(v.Metric), bs[n:])
}

func (schemaRecordMUS) Unmarshal(bs []byte) (v SchemaRecord, n int, err error) {
	v.Dimension, n, err = countMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	var (
		metric string
		n1     int
	)
	metric, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	v.Metric = Metric(metric)
	return
}

func (schemaRecordMUS) Size(v SchemaRecord) int {
	return countMUS.Size(v.Dimension) + ord.String.Size(string(v.Metric))
}
