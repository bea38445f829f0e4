// Package pointid derives deterministic vector point identifiers so
// that re-ingesting a file overwrites its points instead of duplicating them.
package pointid

import (
	"fmt"

	"github.com/google/uuid"
)

// For returns the stable id for the chunkIndex-th chunk of sourceFile.
// sourceFile must be the relative path with forward-slash separators.
// The id is a version-5 UUID in the URL namespace over
// "<sourceFile>::chunk::<chunkIndex>", so the same pair always maps to
// the same id regardless of platform or ingestion run.
func For(sourceFile string, chunkIndex int) string {
	name := fmt.Sprintf("%s::chunk::%d", sourceFile, chunkIndex)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
