package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Partition identifies one of the two FAQ data sets.
type Partition string

const (
	// PartitionPublic is the customer-facing FAQ set.
	PartitionPublic Partition = "public"
	// PartitionInternal is the operator-only FAQ set with richer detail.
	PartitionInternal Partition = "internal"
)

// ParsePartition validates a partition name.
func ParsePartition(s string) (Partition, error) {
	switch Partition(s) {
	case PartitionPublic, PartitionInternal:
		return Partition(s), nil
	}
	return "", fmt.Errorf("unknown partition %q", s)
}

// Entry is a single FAQ entry. Public and internal entries share this shape;
// the partition tells them apart.
type Entry struct {
	ID        uuid.UUID
	Partition Partition
	Brand     string
	Tag       string
	Question  string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SourceKey uniquely addresses an entry across both partitions.
type SourceKey struct {
	Partition Partition
	ID        uuid.UUID
}

// Key returns the entry's source identity.
func (e *Entry) Key() SourceKey {
	return SourceKey{Partition: e.Partition, ID: e.ID}
}

// ChunkPayload is one chunk of an entry's question+answer text, embedded
// and ready for insertion. The store assigns the chunk index and
// denormalizes brand and tag so chunk search needs no join.
type ChunkPayload struct {
	Content   string
	Embedding []float32
}

// EntryPatch holds optional field updates for an internal entry; nil
// fields are left unchanged.
type EntryPatch struct {
	Brand    *string
	Tag      *string
	Question *string
	Content  *string
}

// ChunkHit is a nearest-neighbor match from chunk search.
type ChunkHit struct {
	Partition Partition
	SourceID  uuid.UUID
	Distance  float64
}
