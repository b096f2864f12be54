package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

func TestDecisionField(t *testing.T) {
	tests := []struct {
		name string
		d    guard.Decision
		want string
	}{
		{
			name: "Allowed",
			d:    guard.Decision{Allowed: true, Category: guard.CategoryGeneral},
			want: "allowed:general",
		},
		{
			name: "DeniedWithReason",
			d:    guard.Decision{Category: guard.CategoryAuth, Reason: guard.ReasonRateLimitMinute},
			want: "denied:authentication:rate_limit_minute",
		},
		{
			name: "DeniedBlocked",
			d:    guard.Decision{Category: guard.CategoryAI, Reason: guard.ReasonBlocked},
			want: "denied:ai:blocked",
		},
		{
			name: "DeniedWithoutReason",
			d:    guard.Decision{Category: guard.CategoryGeneral},
			want: "denied:general",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decisionField(tt.d))
		})
	}
}

func TestRedisSinkOptions(t *testing.T) {
	s := NewRedisSink(nil,
		WithPrefix(":fleet:"),
		WithInstance("edge-1"),
		WithTTL(0), // non-positive keeps the default
	)
	defer s.Close()

	assert.Equal(t, "fleet", s.prefix)
	assert.Equal(t, "edge-1", s.instance)
	assert.Positive(t, s.ttl)
}

func TestRedisSinkDropsUnderPressure(t *testing.T) {
	s := NewRedisSink(nil)
	s.Close() // worker gone; the queue fills and overflow is counted

	for i := 0; i < cap(s.queue)+3; i++ {
		s.RecordDecision(guard.Decision{Allowed: true, Category: guard.CategoryGeneral})
	}

	assert.Equal(t, int64(3), s.Dropped())
}

func TestRedisSinkIgnoresBypassed(t *testing.T) {
	s := NewRedisSink(nil)
	defer s.Close()

	s.RecordDecision(guard.Decision{Allowed: true, Bypassed: true})
	assert.Equal(t, int64(0), s.Dropped())
	assert.Empty(t, s.queue)
}

func TestRedisSinkCloseIsIdempotent(t *testing.T) {
	s := NewRedisSink(nil)
	s.Close()
	s.Close()
}
