package badger

import (
	"encoding/binary"
	"math"

	"github.com/poiesic/pagewise/core"
)

// Key layout. Table names come from storage.Schema and are validated
// identifiers, so ':' and '!' never occur inside them.
//
//	<vectors>:<node_id>                        vector record
//	<vectors>!schema                           recorded dimension and metric
//	<vectors>!chkpt:<name>                     job checkpoint
//	<conversations>:<hash(8)><index(8)>        conversation turn
//	<conversations>!head:<hash(8)>             append serialization point

func makeVectorPrefix(table string) []byte {
	return []byte(table + ":")
}

func makeVectorKey(table, nodeID string) []byte {
	return []byte(table + ":" + nodeID)
}

func makeDocumentPrefix(table, documentID string) []byte {
	return []byte(table + ":" + core.NodeIDPrefix(documentID))
}

func makeSchemaKey(table string) []byte {
	return []byte(table + "!schema")
}

func makeCheckpointKey(table, name string) []byte {
	return []byte(table + "!chkpt:" + name)
}

func makeConversationPrefix(table, conversationID string) []byte {
	prefix := []byte(table + ":")
	prefixSize := len(prefix)
	buf := make([]byte, prefixSize+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[prefixSize:], core.ConversationKey(conversationID))
	return buf
}

func makeTurnKey(table, conversationID string, index int64) []byte {
	prefix := makeConversationPrefix(table, conversationID)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort follows the index
	binary.BigEndian.PutUint64(buf[offset:], uint64(index))
	return buf
}

// makeLastTurnKey sorts after every turn of the conversation.
func makeLastTurnKey(table, conversationID string) []byte {
	return makeTurnKey(table, conversationID, math.MaxInt64)
}

func makeHeadKey(table, conversationID string) []byte {
	prefix := []byte(table + "!head:")
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], core.ConversationKey(conversationID))
	return buf
}
