package expense

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{raw: "1.5m", want: 1500000, ok: true},
		{raw: "15k", want: 15000, ok: true},
		{raw: "15K", want: 15000, ok: true},
		{raw: "2,5k", want: 2500, ok: true},
		{raw: "15.000", want: 15000, ok: true},
		{raw: "15,000", want: 15000, ok: true},
		{raw: "$25.000", want: 25000, ok: true},
		{raw: "15000", want: 15000, ok: true},
		{raw: "0", ok: false},
		{raw: "0k", ok: false},
		{raw: "-5", ok: false},
		{raw: "abc", ok: false},
		{raw: "", ok: false},
		{raw: "$", ok: false},
	}
	for _, tc := range cases {
		got, ok := ParseAmount(tc.raw)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseAmount(%q) = (%d, %v), want (%d, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		0:       "$0",
		500:     "$500",
		3000:    "$3.000",
		25000:   "$25.000",
		1500000: "$1.500.000",
		-1200:   "-$1.200",
	}
	for amount, want := range cases {
		if got := FormatAmount(amount); got != want {
			t.Fatalf("FormatAmount(%d) = %q, want %q", amount, got, want)
		}
	}
}

func TestParseExpense(t *testing.T) {
	cases := []struct {
		text string
		want Expense
	}{
		{text: "Almuerzo 25k", want: Expense{Amount: 25000, Description: "Almuerzo"}},
		{text: "25k almuerzo", want: Expense{Amount: 25000, Description: "Almuerzo"}},
		{text: "uber 12.500 al aeropuerto", want: Expense{Amount: 12500, Description: "Uber", CategoryHint: "al aeropuerto"}},
		{text: "Cena $80k #Trabajo con clientes", want: Expense{Amount: 80000, Description: "Cena", CategoryHint: "con clientes", Tag: "trabajo"}},
		{text: "CAFE 3k", want: Expense{Amount: 3000, Description: "Cafe"}},
		{text: "Almuerzo 25k.", want: Expense{Amount: 25000, Description: "Almuerzo"}},
		{text: "Almuerzo: 25.000", want: Expense{Amount: 25000, Description: "Almuerzo"}},
		{text: "¡Taxi, 18.000! al centro.", want: Expense{Amount: 18000, Description: "Taxi", CategoryHint: "al centro"}},
		{text: "mercado $120.000, #casa", want: Expense{Amount: 120000, Description: "Mercado", Tag: "casa"}},
	}
	for _, tc := range cases {
		got, ok := ParseExpense(tc.text)
		if !ok {
			t.Fatalf("ParseExpense(%q) reported no expense", tc.text)
		}
		if got != tc.want {
			t.Fatalf("ParseExpense(%q) = %+v, want %+v", tc.text, got, tc.want)
		}
	}
}

func TestParseExpenseRejects(t *testing.T) {
	for _, text := range []string{"", "hola", "almuerzo", "25k", "0 almuerzo", "#tag 25k", "25k. !", ": 25k"} {
		if got, ok := ParseExpense(text); ok {
			t.Fatalf("expected %q to be rejected, got %+v", text, got)
		}
	}
}

func TestLookupCategory(t *testing.T) {
	category, ok := LookupCategory("1")
	if !ok || category.Name != "Alimentación" {
		t.Fatalf("expected first category, got %+v (%v)", category, ok)
	}
	category, ok = LookupCategory("transporte")
	if !ok || category.Name != "Transporte" {
		t.Fatalf("expected name lookup, got %+v (%v)", category, ok)
	}
	category, ok = LookupCategory("educacion")
	if !ok || category.Name != "Educación" {
		t.Fatalf("expected accent-insensitive lookup, got %+v (%v)", category, ok)
	}
	if _, ok := LookupCategory("0"); ok {
		t.Fatal("expected out-of-range index to fail")
	}
	if _, ok := LookupCategory("99"); ok {
		t.Fatal("expected out-of-range index to fail")
	}
	if _, ok := LookupCategory("mascotas"); ok {
		t.Fatal("expected unknown name to fail")
	}
	all := Categories()
	if all[len(all)-1].Name != DefaultCategoryName {
		t.Fatalf("expected default category last, got %s", all[len(all)-1].Name)
	}
}

type fakeOverrides map[string]string

func (f fakeOverrides) Lookup(description string) (string, bool) {
	value, ok := f[description]
	return value, ok
}

func TestClassify(t *testing.T) {
	classifier := NewClassifier(nil)
	cases := []struct {
		description string
		hint        string
		category    string
		source      Source
	}{
		{description: "Almuerzo", category: "Alimentación", source: SourceKeyword},
		{description: "Cafe", category: "Gastos Hormiga", source: SourceKeyword},
		{description: "Café", category: "Gastos Hormiga", source: SourceKeyword},
		{description: "Uber", category: "Transporte", source: SourceKeyword},
		{description: "Pago", hint: "arriendo de octubre", category: "Vivienda", source: SourceKeyword},
		{description: "Almuerzo", hint: "con cafe", category: "Alimentación", source: SourceKeyword},
		{description: "Cosas", category: DefaultCategoryName, source: SourceDefault},
	}
	for _, tc := range cases {
		got := classifier.Classify(tc.description, tc.hint)
		if got.Category.Name != tc.category || got.Source != tc.source {
			t.Fatalf("Classify(%q, %q) = %s/%s, want %s/%s", tc.description, tc.hint, got.Category.Name, got.Source, tc.category, tc.source)
		}
	}
	if classifier.Classify("Cosas", "").Confident() {
		t.Fatal("expected default classification to be unconfident")
	}
}

func TestClassifyOverrideWins(t *testing.T) {
	classifier := NewClassifier(fakeOverrides{
		"Almuerzo": "Entretenimiento",
		"Perro":    "Mascotas",
	})
	got := classifier.Classify("Almuerzo", "")
	if got.Category.Name != "Entretenimiento" || got.Source != SourceOverride {
		t.Fatalf("expected override to beat keywords, got %+v", got)
	}
	got = classifier.Classify("Perro", "")
	if got.Category.Name != "Mascotas" || got.Source != SourceOverride || !got.Confident() {
		t.Fatalf("expected custom override category, got %+v", got)
	}
}
