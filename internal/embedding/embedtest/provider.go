// Package embedtest provides a deterministic embedding provider for tests.
package embedtest

import (
	"github.com/flemzord/memgraph/internal/embedding"
)

// Provider produces deterministic embeddings from token hashes. Texts that
// share tokens produce nearby vectors, which is enough to exercise similarity
// ranking and duplicate detection without a real model.
type Provider = embedding.Local
