package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// RawDatasetRecord is one catalog entry as enumerated by a source, before
// identity derivation and license normalization.
type RawDatasetRecord struct {
	// Identifier is the source-native identity: a catalog UUID, or a
	// data.json identifier.
	Identifier string
	// Type is the record's declared @type, when the source has one.
	Type string

	Title        string
	Agency       string
	LandingURL   string
	Format       string
	License      string
	LastModified string
}

// Source is one upstream catalog adapter. Pagination is cursor-based: the
// empty cursor starts an enumeration, and an empty next cursor ends it.
type Source interface {
	Name() string
	FetchCatalogPage(ctx context.Context, cursor string) (records []RawDatasetRecord, next string, err error)
}

// CanonicalID derives the stable dataset identity used across sources and
// time. Catalog UUIDs pass through untouched; everything else gets a stable
// hash of (@type, identifier) so the same data.json entry always maps to the
// same ID no matter which feed served it.
func CanonicalID(rec RawDatasetRecord) string {
	if isUUID(rec.Identifier) {
		return rec.Identifier
	}
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s", rec.Type, rec.Identifier))
	return hex.EncodeToString(sum[:16])
}

// isUUID accepts only the canonical hyphenated form; uuid.Validate alone
// would also pass urn: and unhyphenated encodings, which must hash instead
// so one entry never maps to two IDs.
func isUUID(s string) bool {
	return len(s) == 36 && uuid.Validate(s) == nil
}
