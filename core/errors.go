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

package core

import "errors"

// Failure taxonomy shared by ingestion and answering.
var (
	// ErrFetch indicates the source document could not be retrieved.
	ErrFetch = errors.New("document fetch failed")

	// ErrEmbeddingBackend indicates the embedding backend failed or returned malformed output.
	ErrEmbeddingBackend = errors.New("embedding backend error")

	// ErrStoreUnavailable indicates the vector or conversation store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrGeneration indicates the language model failed to produce an answer.
	ErrGeneration = errors.New("generation failed")

	// ErrDimensionMismatch indicates the configured embedding dimension disagrees
	// with the schema already recorded by the vector store.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Domain validation errors
var (
	// ErrInvalidRecord indicates a VectorRecord failed validation.
	ErrInvalidRecord = errors.New("invalid vector record")

	// ErrInvalidTurn indicates a ConversationTurn failed validation.
	ErrInvalidTurn = errors.New("invalid conversation turn")

	// ErrInvalidNodeID indicates a node id could not be parsed.
	ErrInvalidNodeID = errors.New("invalid node id")

	// ErrEmptyConversationID indicates the ConversationID field is empty.
	ErrEmptyConversationID = errors.New("conversation id cannot be empty")

	// ErrInvalidRole indicates an unknown Role value.
	ErrInvalidRole = errors.New("invalid role")

	// ErrEmptyVector indicates a record has no embedding.
	ErrEmptyVector = errors.New("vector cannot be empty")
)
