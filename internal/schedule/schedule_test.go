package schedule

import (
	"errors"
	"testing"
	"time"
)

var colombo = time.FixedZone("Asia/Colombo", 5*3600+30*60)

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog("08:00", "22:00", "12:00", "13:00", time.Hour)
	if err != nil {
		t.Fatalf("NewCatalog error: %v", err)
	}
	return c
}

func TestDefaultCatalogSkipsLunch(t *testing.T) {
	slots := mustCatalog(t).Slots()
	if len(slots) != 13 {
		t.Fatalf("expected 13 slots, got %d: %v", len(slots), slots)
	}
	if slots[0] != "08:00" || slots[len(slots)-1] != "21:00" {
		t.Fatalf("unexpected boundary slots: %v", slots)
	}
	for _, s := range slots {
		if s == "12:00" {
			t.Fatalf("lunch slot present: %v", slots)
		}
	}
	if slots[3] != "11:00" || slots[4] != "13:00" {
		t.Fatalf("unexpected slots around lunch: %v", slots)
	}
}

func TestCatalogHalfHourStepAvoidsBreakOverlap(t *testing.T) {
	c, err := NewCatalog("09:00", "13:00", "11:15", "12:00", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewCatalog error: %v", err)
	}
	want := []string{"09:00", "09:30", "10:00", "10:30", "12:00", "12:30"}
	got := c.Slots()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestCatalogRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name                string
		open, close, bs, be string
		step                time.Duration
	}{
		{"inverted hours", "18:00", "08:00", "12:00", "13:00", time.Hour},
		{"inverted break", "08:00", "18:00", "13:00", "12:00", time.Hour},
		{"zero step", "08:00", "18:00", "12:00", "13:00", 0},
		{"fractional step", "08:00", "18:00", "12:00", "13:00", 90 * time.Second},
		{"bad clock", "8am", "18:00", "12:00", "13:00", time.Hour},
		{"no slots", "08:00", "08:30", "12:00", "13:00", time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCatalog(tc.open, tc.close, tc.bs, tc.be, tc.step)
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("expected ErrInvalidCatalog, got %v", err)
			}
		})
	}
}

func TestContains(t *testing.T) {
	c := mustCatalog(t)
	if !c.Contains("10:00") {
		t.Fatalf("expected 10:00 to be in catalog")
	}
	for _, s := range []string{"12:00", "22:00", "10:30", "", "7:00"} {
		if c.Contains(s) {
			t.Fatalf("did not expect %q in catalog", s)
		}
	}
}

func TestIsDatePast(t *testing.T) {
	now := time.Date(2026, 2, 4, 10, 0, 0, 0, colombo)
	past, err := IsDatePast("2026-02-03", colombo, now)
	if err != nil {
		t.Fatalf("IsDatePast error: %v", err)
	}
	if !past {
		t.Fatalf("expected date to be past")
	}

	past, err = IsDatePast("2026-02-04", colombo, now)
	if err != nil {
		t.Fatalf("IsDatePast error: %v", err)
	}
	if past {
		t.Fatalf("expected today to be not past")
	}

	if _, err := IsDatePast("04/02/2026", colombo, now); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestIsDatePastUsesClinicZone(t *testing.T) {
	// 20:00 UTC on the 3rd is already the 4th in Colombo.
	now := time.Date(2026, 2, 3, 20, 0, 0, 0, time.UTC)
	past, err := IsDatePast("2026-02-03", colombo, now)
	if err != nil {
		t.Fatalf("IsDatePast error: %v", err)
	}
	if !past {
		t.Fatalf("expected the 3rd to be past in clinic time")
	}
}

func TestSlotTime(t *testing.T) {
	got, err := SlotTime("2025-03-10", "10:00", colombo)
	if err != nil {
		t.Fatalf("SlotTime error: %v", err)
	}
	want := time.Date(2025, 3, 10, 10, 0, 0, 0, colombo)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if _, err := SlotTime("2025-03-10", "25:00", colombo); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime, got %v", err)
	}
}

func TestFilterReserved(t *testing.T) {
	slots := []string{"09:00", "10:00", "11:00"}
	filtered := FilterReserved(slots, map[string]bool{"10:00": true})
	if len(filtered) != 2 || filtered[0] != "09:00" || filtered[1] != "11:00" {
		t.Fatalf("unexpected slots: %v", filtered)
	}
}
