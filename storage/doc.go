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

// Package storage provides the storage abstraction layer for pagewise.
//
// This package defines repository interfaces that decouple storage from the
// ingestion pipeline and the responder, plus the pieces every backend shares:
// the Schema, the search Filter, similarity scoring and the record codecs.
//
// # Backends
//
//   - storage/badger: embedded key-value store, table names used as key prefixes
//   - storage/sqlite: single-file SQL database, table names used as SQL tables
//
// Both brute-force the similarity search over every record that passes the
// filter, scoring with the schema's Metric.
//
// # Usage
//
//	store, err := badger.Open("/path/to/db", storage.DefaultSchema())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Vectors().EnsureSchema(ctx, 1024, storage.MetricCosine); err != nil {
//	    log.Fatal(err) // core.ErrDimensionMismatch when the model changed
//	}
//
// # Errors
//
// Connectivity loss and closed stores surface as core.ErrStoreUnavailable.
// No repository retries internally.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
