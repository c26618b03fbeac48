package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/craftlab/cardsmith/internal/domain"
)

// SessionIDForUser derives a stable session id from a username. Re-login
// yields the same id, so quota usage survives token expiry.
func SessionIDForUser(username string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(username))))
	return hex.EncodeToString(sum[:6])
}

// SessionService reports per-kind quota standing for a session.
type SessionService struct {
	Ledger domain.QuotaLedger
	Policy domain.QuotaPolicy
}

// NewSessionService constructs a SessionService.
func NewSessionService(ledger domain.QuotaLedger, policy domain.QuotaPolicy) SessionService {
	return SessionService{Ledger: ledger, Policy: policy}
}

// KindQuota is one kind's quota standing.
type KindQuota struct {
	Used          int
	Budget        int
	Remaining     int
	OverrideLevel int
}

// QuotaSummary reads the current standing for every kind.
func (s SessionService) QuotaSummary(ctx domain.Context, sessionID string) (map[domain.Kind]KindQuota, error) {
	out := make(map[domain.Kind]KindQuota, len(domain.Kinds()))
	for _, kind := range domain.Kinds() {
		used, overrideLevel, err := s.Ledger.Snapshot(ctx, sessionID, kind)
		if err != nil {
			return nil, fmt.Errorf("op=session.quota kind=%s: %w", kind, err)
		}
		out[kind] = KindQuota{
			Used:          used,
			Budget:        s.Policy.Budget(kind, overrideLevel),
			Remaining:     s.Policy.Remaining(kind, used, overrideLevel),
			OverrideLevel: overrideLevel,
		}
	}
	return out, nil
}
