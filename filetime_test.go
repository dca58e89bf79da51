package smb1d

import (
	"testing"
	"time"
)

func TestFiletimeRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 30, 45, 0, time.UTC)
	ft := TimeToFiletime(now)
	back := FiletimeToTime(ft)
	if !back.Equal(now) {
		t.Errorf("FiletimeToTime(TimeToFiletime(%v)) = %v", now, back)
	}
	if TimeToFiletime(time.Time{}) != 0 {
		t.Error("zero time must map to filetime 0")
	}
	if !FiletimeToTime(0).IsZero() {
		t.Error("filetime 0 must map back to the zero time")
	}
}

func TestToDosDateTime(t *testing.T) {
	tests := []struct {
		name           string
		t              time.Time
		wantDate, wantTime uint16
	}{
		{
			name:     "zero time encodes as 0",
			t:        time.Time{},
			wantDate: 0,
			wantTime: 0,
		},
		{
			name:     "before 1980 encodes as 0",
			t:        time.Date(1979, 12, 31, 23, 59, 58, 0, time.UTC),
			wantDate: 0,
			wantTime: 0,
		},
		{
			name: "1980-01-01 00:00:00 is the DOS epoch",
			t:    time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
			// year-1980=0 in bits 9-15, month=1 in bits 5-8, day=1 in bits 0-4
			wantDate: 1<<5 | 1,
			wantTime: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, dosTime := toDosDateTime(tt.t)
			if date != tt.wantDate || dosTime != tt.wantTime {
				t.Errorf("toDosDateTime(%v) = (%#x, %#x), want (%#x, %#x)", tt.t, date, dosTime, tt.wantDate, tt.wantTime)
			}
		})
	}
}
