// Package fileid derives stable identifiers for documents and chunks.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"
	"github.com/hyperjump/tanya/pkg/utils"
)

// pointNamespace scopes UUIDv5 point ids for stores that require UUID keys.
var pointNamespace = uuid.MustParse("6f1c3e0c-6a4e-5b8a-9a2f-3d6c1b7e2a10")

// ChunkID returns the record id of chunk ordinal index of the named document: "<stem>_chunk_<index>".
// The same document name and ordinal always give the same id, so re-ingestion overwrites.
func ChunkID(documentName string, index int) string {
	return utils.Stem(documentName) + "_chunk_" + strconv.Itoa(index)
}

// PointUUID maps a chunk id to a deterministic UUID.
func PointUUID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// ContentHash returns the hex SHA-256 of content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
