package markethours

import (
	"testing"
	"time"
)

// 2026-01-12 is a Monday with no holiday nearby.
func istTime(day, hour, min int) time.Time {
	return time.Date(2026, 1, day, hour, min, 0, 0, IST)
}

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"before open", istTime(12, 9, 14), false},
		{"at open", istTime(12, 9, 15), true},
		{"midday", istTime(12, 12, 0), true},
		{"last minute", istTime(12, 15, 29), true},
		{"at close", istTime(12, 15, 30), false},
		{"saturday", istTime(17, 12, 0), false},
		{"sunday", istTime(18, 12, 0), false},
		{"republic day", time.Date(2026, 1, 26, 12, 0, 0, 0, IST), false},
	}
	for _, tc := range cases {
		if got := IsMarketOpen(tc.t); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsMarketOpen_ConvertsZone(t *testing.T) {
	// 06:30 UTC is noon IST.
	utcNoon := time.Date(2026, 1, 12, 6, 30, 0, 0, time.UTC)
	if !IsMarketOpen(utcNoon) {
		t.Error("UTC time inside the IST session must count as open")
	}
}

func TestNextOpen(t *testing.T) {
	// Before open on a trading day: today's open.
	got := NextOpen(istTime(12, 8, 0))
	if want := istTime(12, 9, 15); !got.Equal(want) {
		t.Errorf("before open: got %v, want %v", got, want)
	}

	// After close: next trading day.
	got = NextOpen(istTime(12, 16, 0))
	if want := istTime(13, 9, 15); !got.Equal(want) {
		t.Errorf("after close: got %v, want %v", got, want)
	}

	// Friday evening skips the weekend.
	got = NextOpen(istTime(16, 16, 0))
	if want := istTime(19, 9, 15); !got.Equal(want) {
		t.Errorf("friday evening: got %v, want %v", got, want)
	}

	// The eve of Republic Day (Sunday 25th) skips Monday's holiday.
	got = NextOpen(time.Date(2026, 1, 25, 12, 0, 0, 0, IST))
	if want := time.Date(2026, 1, 27, 9, 15, 0, 0, IST); !got.Equal(want) {
		t.Errorf("holiday skip: got %v, want %v", got, want)
	}
}

func TestTimeUntilClose(t *testing.T) {
	if d := TimeUntilClose(istTime(12, 15, 0)); d != 30*time.Minute {
		t.Errorf("got %v, want 30m", d)
	}
	if d := TimeUntilClose(istTime(12, 16, 0)); d != 0 {
		t.Errorf("after close: got %v, want 0", d)
	}
}

func TestHolidayName(t *testing.T) {
	if name := HolidayName(time.Date(2026, 12, 25, 10, 0, 0, 0, IST)); name != "Christmas" {
		t.Errorf("got %q, want Christmas", name)
	}
	if name := HolidayName(istTime(12, 10, 0)); name != "" {
		t.Errorf("non-holiday: got %q, want empty", name)
	}
}
