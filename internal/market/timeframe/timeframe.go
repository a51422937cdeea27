package timeframe

import (
	"fmt"
	"time"
)

// Timeframe is a fixed wall-clock-aligned window duration
// ⭐ SSOT: 지원 타임프레임 정의는 이 패키지에서만
//
// Identity is the duration in minutes; two Timeframe values with the same
// duration are the same timeframe.
type Timeframe struct {
	DurationMinutes int    `json:"duration_minutes"`
	DisplayName     string `json:"display_name"`
}

// Duration returns the window length
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.DurationMinutes) * time.Minute
}

// String returns the display name
func (tf Timeframe) String() string {
	return tf.DisplayName
}

// Supported timeframes, shortest first.
var (
	M1  = Timeframe{1, "1분"}
	M5  = Timeframe{5, "5분"}
	M15 = Timeframe{15, "15분"}
	M30 = Timeframe{30, "30분"}
	H1  = Timeframe{60, "1시간"}
	H2  = Timeframe{120, "2시간"}
	H4  = Timeframe{240, "4시간"}
	H8  = Timeframe{480, "8시간"}
	H12 = Timeframe{720, "12시간"}
	D1  = Timeframe{1440, "1일"}
)

// All returns every supported timeframe, shortest first
func All() []Timeframe {
	return []Timeframe{M1, M5, M15, M30, H1, H2, H4, H8, H12, D1}
}

// ByMinutes looks up a timeframe by its duration in minutes
func ByMinutes(minutes int) (Timeframe, error) {
	for _, tf := range All() {
		if tf.DurationMinutes == minutes {
			return tf, nil
		}
	}
	return Timeframe{}, fmt.Errorf("unsupported timeframe: %d minutes", minutes)
}

// WindowStart returns the deterministic start boundary of the window that
// contains now. Boundaries are aligned to wall clock from local midnight, so
// a 5-minute window always starts at :00/:05/:10 regardless of process start.
func (tf Timeframe) WindowStart(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	elapsedMin := int(now.Sub(midnight) / time.Minute)
	startMin := (elapsedMin / tf.DurationMinutes) * tf.DurationMinutes
	return midnight.Add(time.Duration(startMin) * time.Minute)
}

// NextReset returns the first window boundary strictly after now.
// Never returns a time at or before now: if the computed boundary has already
// elapsed (late call, clock drift), it advances by one more period.
func (tf Timeframe) NextReset(now time.Time) time.Time {
	next := tf.WindowStart(now).Add(tf.Duration())
	for !next.After(now) {
		next = next.Add(tf.Duration())
	}
	return next
}
