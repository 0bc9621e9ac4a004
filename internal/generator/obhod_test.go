package generator

import (
	"reflect"
	"testing"
)

func obhodRows(t *testing.T, lines string) []ObhodRow {
	t.Helper()
	rs, errs := ParseRows(lines, EventObhod)
	if len(errs) != 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	return rs.Obhod
}

func TestObhodThreeConsecutiveDaysSplitTwoPlusOne(t *testing.T) {
	rows := obhodRows(t,
		"ЦАО\tЛенина 1\t5.06.2025\t18:00-19:00\n"+
			"ЦАО\tЛенина 1\t6.06.2025\t18:00-19:00\n"+
			"ЦАО\tЛенина 1\t7.06.2025\t18:00-19:00")

	items, rowErrors := BuildObhodOccurrences(rows)
	if len(rowErrors) != 0 {
		t.Fatalf("unexpected row errors: %v", rowErrors)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(items))
	}
	if items[0].ScenarioKey != ScenarioObhod2d11Same {
		t.Fatalf("first block scenario = %s", items[0].ScenarioKey)
	}
	if items[1].ScenarioKey != ScenarioObhod1d1slot {
		t.Fatalf("trailing block scenario = %s", items[1].ScenarioKey)
	}
	if items[1].Vars["NEWS_DATETIME"] != "7 июня с 18:00 до 19:00" {
		t.Fatalf("trailing NEWS_DATETIME = %q", items[1].Vars["NEWS_DATETIME"])
	}
}

func TestObhodTwoDaysTwoIdenticalSlotsCollapse(t *testing.T) {
	rows := obhodRows(t,
		"ЦАО\tЛенина 1\t5.06.2025\t10:00-12:00\n"+
			"ЦАО\tЛенина 1\t5.06.2025\t14:00-16:00\n"+
			"ЦАО\tЛенина 1\t6.06.2025\t10:00-12:00\n"+
			"ЦАО\tЛенина 1\t6.06.2025\t14:00-16:00")

	items, _ := BuildObhodOccurrences(rows)
	if len(items) != 1 {
		t.Fatalf("expected 1 block, got %d", len(items))
	}
	it := items[0]
	if it.ScenarioKey != ScenarioObhod2d22 {
		t.Fatalf("scenario = %s", it.ScenarioKey)
	}
	want := "5 и 6 июня с 10:00 до 12:00 и с 14:00 до 16:00"
	if it.Vars["NEWS_DATETIME"] != want {
		t.Fatalf("NEWS_DATETIME = %q, want %q", it.Vars["NEWS_DATETIME"], want)
	}
	if it.Vars["PUSH_DAY"] != "Завтра и послезавтра" {
		t.Fatalf("PUSH_DAY = %q", it.Vars["PUSH_DAY"])
	}
	if it.Vars["PUSH_TIME"] != "" {
		t.Fatalf("ambiguous time must leave PUSH_TIME empty, got %q", it.Vars["PUSH_TIME"])
	}
}

func TestObhodTwoDaysDifferentSlotsRenderedSeparately(t *testing.T) {
	rows := obhodRows(t,
		"ЦАО\tЛенина 1\t5.06.2025\t10:00-12:00\n"+
			"ЦАО\tЛенина 1\t6.06.2025\t14:00-16:00")

	items, _ := BuildObhodOccurrences(rows)
	if len(items) != 1 {
		t.Fatalf("expected 1 block, got %d", len(items))
	}
	it := items[0]
	if it.ScenarioKey != ScenarioObhod2d11Diff {
		t.Fatalf("scenario = %s", it.ScenarioKey)
	}
	want := "5 июня с 10:00 до 12:00 и 6 июня с 14:00 до 16:00"
	if it.Vars["NEWS_DATETIME"] != want {
		t.Fatalf("NEWS_DATETIME = %q", it.Vars["NEWS_DATETIME"])
	}
}

func TestObhodSameSlotTwoDaysKeepsPushTime(t *testing.T) {
	rows := obhodRows(t,
		"ЦАО\tЛенина 1\t5.06.2025\t18:00-19:00\n"+
			"ЦАО\tЛенина 1\t6.06.2025\t18:00-19:00")

	items, _ := BuildObhodOccurrences(rows)
	it := items[0]
	if it.ScenarioKey != ScenarioObhod2d11Same {
		t.Fatalf("scenario = %s", it.ScenarioKey)
	}
	if it.Vars["PUSH_TIME"] != "с 18:00 до 19:00" {
		t.Fatalf("PUSH_TIME = %q", it.Vars["PUSH_TIME"])
	}
	if it.Vars["NEWS_DATETIME"] != "5 и 6 июня с 18:00 до 19:00" {
		t.Fatalf("NEWS_DATETIME = %q", it.Vars["NEWS_DATETIME"])
	}
}

func TestObhodMixedSlotCounts(t *testing.T) {
	rows := obhodRows(t,
		"ЦАО\tЛенина 1\t5.06.2025\t10:00-12:00\n"+
			"ЦАО\tЛенина 1\t5.06.2025\t14:00-16:00\n"+
			"ЦАО\tЛенина 1\t6.06.2025\t10:00-12:00")

	items, _ := BuildObhodOccurrences(rows)
	if len(items) != 1 || items[0].ScenarioKey != ScenarioObhod2d21 {
		t.Fatalf("expected one obhod_2d_2_1 block, got %+v", items)
	}
}

func TestObhodThirdSlotInDayDropped(t *testing.T) {
	rows := obhodRows(t,
		"ЦАО\tЛенина 1\t5.06.2025\t10:00-11:00\n"+
			"ЦАО\tЛенина 1\t5.06.2025\t12:00-13:00\n"+
			"ЦАО\tЛенина 1\t5.06.2025\t14:00-15:00")

	items, rowErrors := BuildObhodOccurrences(rows)
	if len(rowErrors) != 0 {
		t.Fatalf("extra slots must not error: %v", rowErrors)
	}
	if len(items) != 1 || items[0].ScenarioKey != ScenarioObhod1d2slot {
		t.Fatalf("expected one obhod_1d_2slot block, got %+v", items)
	}
	want := "5 июня с 10:00 до 11:00 и с 12:00 до 13:00"
	if items[0].Vars["NEWS_DATETIME"] != want {
		t.Fatalf("NEWS_DATETIME = %q", items[0].Vars["NEWS_DATETIME"])
	}
}

func TestObhodAddressesDoNotMix(t *testing.T) {
	rows := obhodRows(t,
		"ЦАО\tЛенина 1\t5.06.2025\t18:00-19:00\n"+
			"ЦАО\tМира 2\t6.06.2025\t18:00-19:00")

	items, _ := BuildObhodOccurrences(rows)
	if len(items) != 2 {
		t.Fatalf("addresses must be independent, got %d items", len(items))
	}
	if items[0].Address != "Ленина 1" || items[1].Address != "Мира 2" {
		t.Fatalf("address order not preserved: %+v", items)
	}
}

func TestObhodInvalidRowExcludedOthersSurvive(t *testing.T) {
	rows := obhodRows(t,
		"ЦАО\tЛенина 1\t5.06.2025\t18:00-19:00\n"+
			"ЦАО\tЛенина 1\t31.02.2025\t18:00-19:00")

	items, rowErrors := BuildObhodOccurrences(rows)
	if len(rowErrors) != 1 || rowErrors[0].RowNum != 2 {
		t.Fatalf("expected row error for row 2, got %v", rowErrors)
	}
	if len(items) != 1 {
		t.Fatalf("valid row must still produce a block")
	}
}

func TestObhodIdempotent(t *testing.T) {
	rows := obhodRows(t,
		"ЦАО\tЛенина 1\t5.06.2025\t10:00-12:00\n"+
			"ЦАО\tЛенина 1\t6.06.2025\t14:00-16:00\n"+
			"ЦАО\tМира 2\t6.06.2025\t18:00-19:00")

	a, aErr := BuildObhodOccurrences(rows)
	b, bErr := BuildObhodOccurrences(rows)
	if !reflect.DeepEqual(a, b) || !reflect.DeepEqual(aErr, bErr) {
		t.Fatalf("repeated grouping differs:\n%+v\n%+v", a, b)
	}
}

func TestFormatObhodDateTimeMulti(t *testing.T) {
	got, err := FormatObhodDateTimeMulti("5.06.2025", []string{"14:00-16:00", "10:00-12:00"})
	if err != nil {
		t.Fatal(err)
	}
	want := "5 июня с 10:00 до 12:00 и с 14:00 до 16:00"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	got, err = FormatObhodDateTimeMulti("5.06.2025", []string{"10:00-12:00", "10:00-12:00"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "5 июня с 10:00 до 12:00" {
		t.Fatalf("duplicate times must collapse, got %q", got)
	}

	// The cap counts raw entries, duplicates included.
	if _, err := FormatObhodDateTimeMulti("5.06.2025", []string{"10:00-11:00", "12:00-13:00", "12:00-13:00"}); err == nil {
		t.Fatal("three times must be rejected")
	}
	if _, err := FormatObhodDateTimeMulti("5.06.2025", []string{"10:00-11:00", "12:00-13:00", "14:00-15:00"}); err == nil {
		t.Fatal("three distinct times must be rejected")
	}
	if _, err := FormatObhodDateTimeMulti("5.06.2025", []string{" ", ""}); err == nil {
		t.Fatal("empty times must be rejected")
	}
}

func TestBuildRescheduleGroups(t *testing.T) {
	rows := obhodRows(t,
		"ЦАО\tЛенина 1\t5.06.2025\t10:00-12:00\n"+
			"ЦАО\tЛенина 1\t5.06.2025\t14:00-16:00\n"+
			"ЦАО\tЛенина 1\t6.06.2025\t10:00-12:00")

	groups, rowErrors := BuildRescheduleGroups(rows)
	if len(rowErrors) != 0 {
		t.Fatalf("unexpected errors: %v", rowErrors)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if len(groups[0].Times) != 2 || !reflect.DeepEqual(groups[0].RowNums, []int{1, 2}) {
		t.Fatalf("first group wrong: %+v", groups[0])
	}
}
