package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// BuildArtifactKey derives the deterministic blob key for a job:
//
//	kind_plural/{session}_user_{ordinal:03d}_override{level}_{seq}_{yyyymmdd_hhmmss}.{ext}
//
// Keys are self-describing and collision-free without consulting the job
// store; seq is a short random component so two jobs stamped in the same
// second cannot collide.
func BuildArtifactKey(kind Kind, sessionID string, userOrdinal, overrideLevel int, seq string, t time.Time) string {
	return fmt.Sprintf("%s/%s_user_%03d_override%d_%s_%s.%s",
		kind.Plural(), sessionID, userOrdinal, overrideLevel, seq,
		t.UTC().Format("20060102_150405"), kind.Ext())
}

// NewArtifactSeq returns a short random hex sequence for key construction.
func NewArtifactSeq() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Timestamp fallback keeps keys unique enough if the RNG fails.
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(b[:])
}
