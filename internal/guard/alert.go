package guard

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// alertThrottle caps the rate of security alert logs. A flood of violations
// is exactly when alerts fire most, and the engine must not amplify an
// attack into log pressure. Suppressed alerts are counted and reported with
// the next emitted one.
type alertThrottle struct {
	log        *zap.Logger
	lim        *rate.Limiter
	suppressed atomic.Int64
}

func newAlertThrottle(log *zap.Logger, every time.Duration, burst int) *alertThrottle {
	if every <= 0 {
		every = time.Second
	}
	if burst < 1 {
		burst = 1
	}
	return &alertThrottle{log: log, lim: rate.NewLimiter(rate.Every(every), burst)}
}

// alert logs at warn level if the limiter admits it, otherwise counts the
// suppression.
func (a *alertThrottle) alert(msg string, fields ...zap.Field) {
	if !a.lim.Allow() {
		a.suppressed.Add(1)
		return
	}
	if n := a.suppressed.Swap(0); n > 0 {
		fields = append(fields, zap.Int64("suppressed_alerts", n))
	}
	a.log.Warn(msg, fields...)
}
