package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"pricing-service/internal/models"
)

// Fingerprint derives the stable cache key for a context and strategy
// version. Two contexts that price identically under the same rule set
// must produce the same fingerprint. The debug flag participates even
// though it never moves the price: a debug caller must not be served an
// entry computed without the debug block.
func Fingerprint(pctx models.PricingContext, strategyID string, strategyVersion int) string {
	var sb strings.Builder
	sb.WriteString(pctx.Destination)
	sb.WriteByte('|')
	fmt.Fprintf(&sb, "%d", pctx.Days)
	sb.WriteByte('|')
	sb.WriteString(pctx.Group)
	sb.WriteByte('|')
	sb.WriteString(pctx.PaymentMethod)
	sb.WriteByte('|')
	sb.WriteString(pctx.PromoCode)
	sb.WriteByte('|')
	if pctx.PriorBundle != nil {
		fmt.Fprintf(&sb, "%s:%d:%d", pctx.PriorBundle.BundleID, pctx.PriorBundle.ValidityDays, pctx.PriorBundle.DaysConsumed)
	}
	sb.WriteByte('|')
	sb.WriteString(pctx.TenantID)
	sb.WriteByte('|')
	fmt.Fprintf(&sb, "%t", pctx.Debug)
	sb.WriteByte('|')
	fmt.Fprintf(&sb, "%s:%d", strategyID, strategyVersion)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:16])
}
