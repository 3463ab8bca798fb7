package validators

import (
	"time"

	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
)

// ParseTimestamp reads an RFC 3339 or offset-less timestamp into the settlement zone.
func ParseTimestamp(clk clock.Clock, raw, field string) (time.Time, error) {
	t, err := clock.Parse(clk, raw)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field).
			WithDetails(map[string]any{"field": field})
	}
	return t, nil
}
