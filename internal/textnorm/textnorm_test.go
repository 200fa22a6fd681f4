package textnorm

import "testing"

func TestFold(t *testing.T) {
	tests := map[string]string{
		"Alimentación":      "alimentacion",
		"  CAFÉ   con  pan ": "cafe con pan",
		"Pingüino":          "pinguino",
		"":                  "",
	}
	for input, want := range tests {
		if got := Fold(input); got != want {
			t.Fatalf("Fold(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestContainsPhrase(t *testing.T) {
	if !ContainsPhrase("Quiero que seas mi PROFESOR!", "profesor") {
		t.Fatal("expected profesor to match on word boundary")
	}
	if ContainsPhrase("profesores", "profesor") {
		t.Fatal("did not expect partial word match")
	}
	if !ContainsPhrase("usa el modelo rápido", "modelo rapido") {
		t.Fatal("expected folded multi-word phrase to match")
	}
	if ContainsPhrase("anything", "  ") {
		t.Fatal("empty phrase must not match")
	}
}
