package hippograph

import (
	"errors"

	"github.com/hippograph/hippograph/llm"
	"github.com/hippograph/hippograph/route"
)

var (
	// ErrEmptyDocument is returned when a document has no extractable content.
	ErrEmptyDocument = errors.New("hippograph: document has no content")

	// ErrNoDocuments is returned when a group has no indexed documents.
	ErrNoDocuments = errors.New("hippograph: no documents indexed for group")

	// ErrGroupIndexing is returned when an indexing run is already in
	// progress for the same group.
	ErrGroupIndexing = errors.New("hippograph: indexing already in progress for group")

	// ErrDimensionMismatch is returned when an embedding does not match the
	// configured dimensionality.
	ErrDimensionMismatch = errors.New("hippograph: embedding dimension mismatch")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("hippograph: embedding generation failed")

	// ErrLLMRequestFailed is returned when an LLM request fails on a
	// non-retryable status or after exhausting retries.
	ErrLLMRequestFailed = llm.ErrRequestFailed

	// ErrStoreUnavailable is returned when the graph store cannot be reached.
	ErrStoreUnavailable = errors.New("hippograph: graph store unavailable")

	// ErrTripleLoadFailed is returned when the triple store cannot be loaded
	// for a non-empty group.
	ErrTripleLoadFailed = route.ErrTripleLoadFailed

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("hippograph: invalid configuration")
)
