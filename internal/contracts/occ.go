package contracts

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EncodeOCC builds the exchange option symbol:
// ROOT + YYMMDD + C|P + strike*1000 zero-padded to 8 digits.
// Example: SPY251205C00684000.
func EncodeOCC(root string, expiry time.Time, right string, strike float64) string {
	strikeThou := int64(strike*1000 + 0.5)
	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(root), expiry.Format("060102"), strings.ToUpper(right), strikeThou)
}

// DecodeStrike pulls the strike back out of an OCC code. Used when
// recovering the cluster center from an active subscription set.
func DecodeStrike(occ string) (float64, bool) {
	if len(occ) < 8 {
		return 0, false
	}
	raw := occ[len(occ)-8:]
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return float64(v) / 1000, true
}
