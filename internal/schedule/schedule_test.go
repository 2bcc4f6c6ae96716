package schedule

import (
	"testing"
	"time"
)

func TestCatalogMarks(t *testing.T) {
	if len(Catalog) != 15 {
		t.Fatalf("expected 15 catalog marks, got %d", len(Catalog))
	}
	if Catalog[0] != "09:00" || Catalog[len(Catalog)-1] != "17:00" {
		t.Fatalf("unexpected boundary marks: %v", Catalog)
	}
	if InCatalog("13:00") {
		t.Fatalf("13:00 falls in the lunch gap and must not be bookable")
	}
	if !InCatalog("12:30") {
		t.Fatalf("12:30 should be bookable")
	}
}

func TestSlotStart(t *testing.T) {
	start, err := SlotStart("2024-07-12", "09:00", time.UTC)
	if err != nil {
		t.Fatalf("SlotStart error: %v", err)
	}
	want := time.Date(2024, 7, 12, 9, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Fatalf("expected %v, got %v", want, start)
	}

	if _, err := SlotStart("12-07-2024", "09:00", time.UTC); err != ErrInvalidDate {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if _, err := SlotStart("2024-07-12", "9am", time.UTC); err != ErrInvalidTime {
		t.Fatalf("expected ErrInvalidTime, got %v", err)
	}
}

func TestEndTime(t *testing.T) {
	end, err := EndTime("09:00")
	if err != nil {
		t.Fatalf("EndTime error: %v", err)
	}
	if end != "09:30" {
		t.Fatalf("expected 09:30, got %s", end)
	}

	end, err = EndTime("17:00")
	if err != nil {
		t.Fatalf("EndTime error: %v", err)
	}
	if end != "17:30" {
		t.Fatalf("expected 17:30, got %s", end)
	}
}

func TestDateKey(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 01:00 UTC on the 13th is still the evening of the 12th in New York.
	instant := time.Date(2024, 7, 13, 1, 0, 0, 0, time.UTC)
	if key := DateKey(instant, loc); key != "2024-07-12" {
		t.Fatalf("expected 2024-07-12, got %s", key)
	}
	if key := DateKey(instant, time.UTC); key != "2024-07-13" {
		t.Fatalf("expected 2024-07-13, got %s", key)
	}
}

func TestIsDatePast(t *testing.T) {
	now := time.Date(2024, 7, 12, 10, 0, 0, 0, time.UTC)

	past, err := IsDatePast("2024-07-11", time.UTC, now)
	if err != nil {
		t.Fatalf("IsDatePast error: %v", err)
	}
	if !past {
		t.Fatalf("expected date to be past")
	}

	past, err = IsDatePast("2024-07-12", time.UTC, now)
	if err != nil {
		t.Fatalf("IsDatePast error: %v", err)
	}
	if past {
		t.Fatalf("expected today to be not past")
	}
}
