package classify

import "testing"

func TestClassify_Prefixed(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"mijoz prefix", "Mijoz: Aziz", "Aziz", true},
		{"short prefix", "M: Karimov", "Karimov", true},
		{"client prefix", "client: John Smith", "John Smith", true},
		{"customer prefix", "CUSTOMER: Alisher", "Alisher", true},
		{"prefix with separators", "Mijoz: - Aziz -", "Aziz", true},
		{"prefix with slashes", "Mijoz: Aziz//Karimov", "Aziz Karimov", true},
		{"prefix too short", "Mijoz: A", "", false},
		{"prefix empty", "Mijoz:", "", false},
		// A prefixed name keeps digits: the prefix is an explicit claim.
		{"prefixed with digits", "M: Firma 2000", "Firma 2000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Classify(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestClassify_Logistics(t *testing.T) {
	for _, text := range []string{
		"DAP Ташкент",
		"FCA Warsaw",
		"г. Москва",
		"город Самарканд",
		"Toshkent, Chilonzor",
		"Andijon - Asaka",
		"CIF shipment",
	} {
		if got, ok := Classify(text); ok {
			t.Errorf("Classify(%q) accepted logistics text as %q", text, got)
		}
	}
}

func TestClassify_Bare(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"single name", "Aziz", "Aziz", true},
		{"cyrillic name", "Каримов", "Каримов", true},
		{"uzbek letters", "Ғафур Ғулом", "Ғафур Ғулом", true},
		{"two words", "Aziz Karimov", "Aziz Karimov", true},
		{"four words", "Aziz Karimov Olim Toshev", "Aziz Karimov Olim Toshev", true},
		{"apostrophe", "Oʼzbek", "Oʼzbek", true},
		{"hyphenated", "Al-Farobiy", "Al-Farobiy", true},
		{"digits reject", "Aziz 2", "", false},
		{"too many words", "a b c d e", "", false},
		{"too short after clean", "!!", "", false},
		{"empty", "", "", false},
		{"whitespace collapse", "  Aziz   Karimov  ", "Aziz Karimov", true},
		{"strip disallowed", "Aziz™", "Aziz", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.text)
			if ok != tt.ok {
				t.Fatalf("Classify(%q) ok = %v, want %v (got %q)", tt.text, ok, tt.ok, got)
			}
			if ok && got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		got, ok := Classify("Mijoz: Aziz")
		if !ok || got != "Aziz" {
			t.Fatalf("run %d: Classify changed its mind: (%q, %v)", i, got, ok)
		}
	}
}
