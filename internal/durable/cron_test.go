package durable

import (
	"testing"
	"time"
)

func TestParseCronRejectsWrongFieldCount(t *testing.T) {
	if _, err := parseCron("* * *"); err == nil {
		t.Error("expected an error for a 3-field expression")
	}
}

func TestCronFieldWildcardMatchesEverything(t *testing.T) {
	fields, err := parseCron("* * * * *")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 7, 31, 13, 45, 0, 0, time.UTC)
	if !fields.matches(now) {
		t.Error("expected a wildcard expression to match any time")
	}
}

func TestCronFieldStepMatchesMultiples(t *testing.T) {
	fields, err := parseCron("*/30 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	if !fields.matches(time.Date(2026, 7, 31, 13, 0, 0, 0, time.UTC)) {
		t.Error("expected minute 0 to match */30")
	}
	if !fields.matches(time.Date(2026, 7, 31, 13, 30, 0, 0, time.UTC)) {
		t.Error("expected minute 30 to match */30")
	}
	if fields.matches(time.Date(2026, 7, 31, 13, 15, 0, 0, time.UTC)) {
		t.Error("expected minute 15 not to match */30")
	}
}

func TestCronFieldExactValueMatchesOnlyThatValue(t *testing.T) {
	fields, err := parseCron("0 9 * * *")
	if err != nil {
		t.Fatal(err)
	}
	if !fields.matches(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)) {
		t.Error("expected 09:00 to match \"0 9 * * *\"")
	}
	if fields.matches(time.Date(2026, 7, 31, 9, 1, 0, 0, time.UTC)) {
		t.Error("expected 09:01 not to match \"0 9 * * *\"")
	}
	if fields.matches(time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)) {
		t.Error("expected 10:00 not to match \"0 9 * * *\"")
	}
}

func TestCronFieldCommaListMatchesAnyListedValue(t *testing.T) {
	fields, err := parseCron("0,15,30,45 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []int{0, 15, 30, 45} {
		tm := time.Date(2026, 7, 31, 13, m, 0, 0, time.UTC)
		if !fields.matches(tm) {
			t.Errorf("expected minute %d to match the comma list", m)
		}
	}
	if fields.matches(time.Date(2026, 7, 31, 13, 20, 0, 0, time.UTC)) {
		t.Error("expected minute 20 not to match the comma list")
	}
}

func TestParseCronFieldRejectsGarbage(t *testing.T) {
	if _, err := parseCronField("not-a-number"); err == nil {
		t.Error("expected an error for a non-numeric field")
	}
	if _, err := parseCronField("*/0"); err == nil {
		t.Error("expected an error for a zero step")
	}
}

func TestCronTriggerStopReturnsWithoutBlocking(t *testing.T) {
	stop, err := CronTrigger("* * * * *", func(time.Time) {})
	if err != nil {
		t.Fatal(err)
	}
	stop() // must not panic or block
}
