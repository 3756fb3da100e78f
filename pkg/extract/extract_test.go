package extract

import (
	"reflect"
	"testing"
)

func TestDatesNumericPatterns(t *testing.T) {
	text := "Signed 15.03.2024, copied 15/03/2024, archived 2024-03-15."
	got := Dates(text)
	want := []string{"15.03.2024", "15/03/2024", "2024-03-15"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Dates() = %v, want %v", got, want)
	}
}

func TestDatesMonthNamesBothLanguages(t *testing.T) {
	text := "Due 15 March 2024 and received 7 марта 2024."
	got := Dates(text)
	want := []string{"15 March 2024", "7 марта 2024"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Dates() = %v, want %v", got, want)
	}
}

func TestDatesDeduplicatesExactStrings(t *testing.T) {
	got := Dates("15.03.2024 then again 15.03.2024")
	if !reflect.DeepEqual(got, []string{"15.03.2024"}) {
		t.Fatalf("Dates() = %v, want single entry", got)
	}
}

func TestAmounts(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"Total 100 USD paid", []string{"100 USD"}},
		{"Price $250 net", []string{"$250"}},
		{"Итого 1 500,00 руб. к оплате", []string{"1 500,00 руб."}},
		{"Budget € 1 500 approved", []string{"€ 1 500"}},
		{"no money here", []string{}},
	}
	for _, tc := range cases {
		if got := Amounts(tc.text); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Amounts(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestAmountsDoNotSwallowAdjacentDate(t *testing.T) {
	got := Amounts("15.03.2024 100 USD")
	if !reflect.DeepEqual(got, []string{"100 USD"}) {
		t.Fatalf("Amounts() = %v, want [100 USD]", got)
	}
}

func TestAmountsDeduplicateOverlappingPatterns(t *testing.T) {
	// 100$ is reachable by the token-last pattern only, $100 by symbol-first
	// only; the same literal span must not be reported twice.
	got := Amounts("pay 100$ or 100$")
	if !reflect.DeepEqual(got, []string{"100$"}) {
		t.Fatalf("Amounts() = %v, want [100$]", got)
	}
}

func TestEmailsPreserveCase(t *testing.T) {
	got := Emails("Contact John.Doe@Example.COM or a@b.com.")
	want := []string{"John.Doe@Example.COM", "a@b.com"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Emails() = %v, want %v", got, want)
	}
}

func TestPhones(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"call +7 (495) 123-45-67 now", []string{"+7 (495) 123-45-67"}},
		{"mobile 8 916 123 45 67", []string{"8 916 123 45 67"}},
		{"short 123-45-67 works", []string{"123-45-67"}},
		{"too short 12345", []string{}},
		{"date 15-03-2024 is not a phone", []string{}},
	}
	for _, tc := range cases {
		if got := Phones(tc.text); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Phones(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestKeywordsRankingAndFilters(t *testing.T) {
	text := "Invoice invoice INVOICE payment payment total that THAT и в"
	got := Keywords(text)
	want := []string{"invoice", "payment", "total"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Keywords() = %v, want %v", got, want)
	}
}

func TestKeywordsTieBrokenByFirstOccurrence(t *testing.T) {
	got := Keywords("alpha bravo alpha bravo charlie")
	want := []string{"alpha", "bravo", "charlie"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Keywords() = %v, want %v", got, want)
	}
}

func TestKeywordsTruncatedToTen(t *testing.T) {
	text := "aaaa bbbb cccc dddd eeee ffff gggg hhhh iiii jjjj kkkk llll"
	if got := Keywords(text); len(got) != 10 {
		t.Fatalf("len(Keywords()) = %d, want 10", len(got))
	}
}

func TestEntitiesEmptyInput(t *testing.T) {
	got := Entities("")
	for name, set := range map[string][]string{
		"dates": got.Dates, "amounts": got.Amounts, "emails": got.Emails,
		"phones": got.Phones, "keywords": got.Keywords,
	} {
		if set == nil || len(set) != 0 {
			t.Errorf("%s = %v, want empty non-nil set", name, set)
		}
	}
}

func TestEntitiesIdempotent(t *testing.T) {
	text := "Invoice 15.03.2024 for 100 USD from a@b.com, call +7 (495) 123-45-67"
	first := Entities(text)
	second := Entities(text)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Entities() not deterministic: %v vs %v", first, second)
	}
	if len(first.Dates) == 0 || len(first.Amounts) == 0 || len(first.Emails) == 0 {
		t.Fatalf("Entities() missed expected matches: %+v", first)
	}
}
