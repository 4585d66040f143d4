// Package ggml implements a streaming reader for the three legacy GGML
// checkpoint container layouts (GGML, GGMF, GGJT). The engine walks a
// checkpoint in a single pass and reports everything it finds through a
// caller-supplied Handler; it holds no state across traversals and never
// materialises tensor data the caller did not ask for.
package ggml

import "fmt"

// Container magic numbers, little-endian u32 at offset 0.
const (
	MagicGGML uint32 = 0x67676d6c // unversioned, oldest
	MagicGGMF uint32 = 0x67676d66 // versioned
	MagicGGJT uint32 = 0x67676a74 // versioned, tensor data 32-byte aligned
)

// FormatVersion is the only format version accepted for versioned containers.
const FormatVersion uint32 = 1

// tensorAlign is the tensor data alignment required by GGJT files.
const tensorAlign = 32

// ContainerRevision identifies which of the three historical on-disk
// layouts a checkpoint uses. It is fixed by the magic number and never
// changes mid-stream.
type ContainerRevision uint32

const (
	// RevisionGGML is the oldest layout: no format version field and no
	// vocabulary scores.
	RevisionGGML ContainerRevision = iota
	// RevisionGGMF adds a format version field and vocabulary scores.
	RevisionGGMF
	// RevisionGGJT additionally aligns tensor data to 32 bytes so the
	// file can be memory-mapped.
	RevisionGGJT
)

func (r ContainerRevision) String() string {
	switch r {
	case RevisionGGML:
		return "ggml"
	case RevisionGGMF:
		return "ggmf"
	case RevisionGGJT:
		return "ggjt"
	default:
		return fmt.Sprintf("revision(%d)", uint32(r))
	}
}

// Versioned reports whether the container carries a format version field
// and per-token vocabulary scores.
func (r ContainerRevision) Versioned() bool {
	return r == RevisionGGMF || r == RevisionGGJT
}

// Aligned reports whether tensor data starts on 32-byte boundaries.
func (r ContainerRevision) Aligned() bool {
	return r == RevisionGGJT
}

// classifyMagic maps a magic number to its container revision.
func classifyMagic(magic uint32) (ContainerRevision, error) {
	switch magic {
	case MagicGGML:
		return RevisionGGML, nil
	case MagicGGMF:
		return RevisionGGMF, nil
	case MagicGGJT:
		return RevisionGGJT, nil
	default:
		return 0, &MagicError{Magic: magic}
	}
}

// alignOffset rounds an offset up to the next tensor alignment boundary.
func alignOffset(off int64) int64 {
	return (off + tensorAlign - 1) &^ (tensorAlign - 1)
}
