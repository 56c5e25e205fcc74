package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Metadata keys attached to normalized documents and chunks.
const (
	MetaSourceURL    = "source_url"
	MetaSpaceKey     = "space_key"
	MetaSpaceName    = "space_name"
	MetaAuthor       = "author"
	MetaVersion      = "version"
	MetaPageID       = "page_id"
	MetaTitle        = "title"
	MetaLabels       = "labels"
	MetaLastUpdated  = "last_updated"
	MetaChunkIndex   = "chunk_index"
	MetaTotalChunks  = "total_chunks"
	MetaDocumentType = "document_type"
)

// nodeIDSeparator separates the document id from the chunk position in a node id.
const nodeIDSeparator = "#"

// Document is a raw page as delivered by the document source.
// The pipeline only reads it.
type Document struct {
	ID        string
	Body      string // Confluence storage-format markup
	Version   int
	Title     string
	SpaceKey  string
	SpaceName string
	Author    string
	URL       string
	Labels    []string
	UpdatedAt time.Time
}

// NormalizedDocument is plain text plus metadata produced from a Document.
// It exists for the duration of a single ingestion run.
type NormalizedDocument struct {
	DocumentID string
	Text       string
	Metadata   map[string]string
}

// Chunk is an ordered text span of a NormalizedDocument.
type Chunk struct {
	DocumentID string
	Index      int
	NodeID     string
	Text       string
	// Overlap is the number of leading runes of Text copied from the previous chunk.
	Overlap  int
	Metadata map[string]string
}

// Core returns the chunk text without the leading overlap.
func (c *Chunk) Core() string {
	if c.Overlap <= 0 {
		return c.Text
	}
	runes := []rune(c.Text)
	if c.Overlap >= len(runes) {
		return ""
	}
	return string(runes[c.Overlap:])
}

// VectorRecord is the unit stored in the vector store. It is always written whole.
type VectorRecord struct {
	NodeID     string
	DocumentID string
	ChunkIndex int
	Vector     []float32
	Text       string
	Metadata   map[string]string
	UpdatedAt  time.Time
}

// SearchResult pairs a stored record with its similarity score.
type SearchResult struct {
	Record *VectorRecord
	Score  float32
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message in a persisted dialogue.
type ConversationTurn struct {
	ConversationID string
	Index          int64 // assigned by the store, strictly increasing per conversation
	Role           Role
	Content        string
	CreatedAt      time.Time
}

// NodeID derives the storage key of a chunk from its document and position.
// It never depends on chunk content.
func NodeID(documentID string, index int) string {
	return documentID + nodeIDSeparator + strconv.Itoa(index)
}

// ParseNodeID splits a node id into its document id and chunk index.
func ParseNodeID(nodeID string) (string, int, error) {
	pos := strings.LastIndex(nodeID, nodeIDSeparator)
	if pos <= 0 || pos == len(nodeID)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidNodeID, nodeID)
	}
	index, err := strconv.Atoi(nodeID[pos+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidNodeID, nodeID)
	}
	return nodeID[:pos], index, nil
}

// NodeIDPrefix returns the prefix shared by every node id of a document.
func NodeIDPrefix(documentID string) string {
	return documentID + nodeIDSeparator
}

// ConversationKey hashes a conversation id into a fixed-width key using BLAKE2b.
// Identical ids always produce identical keys.
func ConversationKey(conversationID string) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(conversationID))
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}
