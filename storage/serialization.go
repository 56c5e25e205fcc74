// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/poiesic/pagewise/core"
)

// EncodeVector packs a vector as little-endian float32 values.
func EncodeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector unpacks a vector written by EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: vector blob of %d bytes", ErrTruncatedData, len(data))
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector, nil
}

// EncodeMetadata serializes a metadata map. A nil map encodes as "{}".
func EncodeMetadata(metadata map[string]string) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return string(data), nil
}

// DecodeMetadata parses a map written by EncodeMetadata.
func DecodeMetadata(data string) (map[string]string, error) {
	metadata := map[string]string{}
	if data == "" {
		return metadata, nil
	}
	if err := json.Unmarshal([]byte(data), &metadata); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return metadata, nil
}

// MarshalVectorRecord serializes a VectorRecord to bytes.
func MarshalVectorRecord(record *core.VectorRecord) []byte {
	buf := make([]byte, VectorRecordMUS.Size(*record))
	VectorRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalVectorRecord deserializes a VectorRecord from bytes.
func UnmarshalVectorRecord(data []byte) (*core.VectorRecord, error) {
	record, _, err := VectorRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if record.Metadata == nil {
		record.Metadata = map[string]string{}
	}
	return &record, nil
}

// MarshalTurn serializes a ConversationTurn to bytes.
func MarshalTurn(turn *core.ConversationTurn) []byte {
	buf := make([]byte, TurnMUS.Size(*turn))
	TurnMUS.Marshal(*turn, buf)
	return buf
}

// UnmarshalTurn deserializes a ConversationTurn from bytes.
func UnmarshalTurn(data []byte) (*core.ConversationTurn, error) {
	turn, _, err := TurnMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &turn, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *Checkpoint) []byte {
	buf := make([]byte, CheckpointMUS.Size(*checkpoint))
	CheckpointMUS.Marshal(*checkpoint, buf)
	return buf
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*Checkpoint, error) {
	checkpoint, _, err := CheckpointMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &checkpoint, nil
}

// MarshalSchemaRecord serializes a SchemaRecord to bytes.
func MarshalSchemaRecord(record SchemaRecord) []byte {
	buf := make([]byte, SchemaRecordMUS.Size(record))
	SchemaRecordMUS.Marshal(record, buf)
	return buf
}

// UnmarshalSchemaRecord deserializes a SchemaRecord from bytes.
func UnmarshalSchemaRecord(data []byte) (SchemaRecord, error) {
	record, _, err := SchemaRecordMUS.Unmarshal(data)
	if err != nil {
		return SchemaRecord{}, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return record, nil
}
