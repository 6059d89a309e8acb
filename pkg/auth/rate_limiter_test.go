package auth

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRateLimiterBurst(t *testing.T) {
	Convey("Given a limiter allowing 2 per minute", t, func() {
		rl := NewRateLimiter(2, time.Minute)

		Convey("Then the burst passes and the next call does not", func() {
			So(rl.Allow(), ShouldBeTrue)
			So(rl.Allow(), ShouldBeTrue)
			So(rl.Allow(), ShouldBeFalse)
		})
	})
}

func TestRateLimiterWaitTime(t *testing.T) {
	Convey("Given a drained limiter", t, func() {
		rl := NewRateLimiter(1, time.Minute)
		So(rl.Allow(), ShouldBeTrue)

		Convey("Then WaitTime points at the next permit", func() {
			So(rl.WaitTime(), ShouldBeGreaterThan, time.Duration(0))
			So(rl.WaitTime(), ShouldBeLessThanOrEqualTo, time.Minute)
		})
	})
}

func TestRateLimiterRefills(t *testing.T) {
	Convey("Given a drained limiter with a short interval", t, func() {
		rl := NewRateLimiter(1, 25*time.Millisecond)
		So(rl.Allow(), ShouldBeTrue)

		time.Sleep(50 * time.Millisecond)

		Convey("Then permits come back after the interval", func() {
			So(rl.Allow(), ShouldBeTrue)
		})
	})
}
