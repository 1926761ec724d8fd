package submission

import "testing"

// TestResolveDelimiter проверяет разделители поддерживаемых расширений.
func TestResolveDelimiter(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		wantSep  rune
		wantOK   bool
	}{
		{"csv", "donor.csv", ',', true},
		{"tsv", "donor.tsv", '\t', true},
		{"верхний регистр", "DONOR.TSV", '\t', true},
		{"смешанный регистр", "sample.CsV", ',', true},
		{"несколько точек", "sample.v2.tsv", '\t', true},
		{"txt", "donor.txt", 0, false},
		{"xlsx", "donor.xlsx", 0, false},
		{"без расширения", "donor", 0, false},
		{"пустое имя", "", 0, false},
		{"расширение как часть имени", "csv", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sep, ok := ResolveDelimiter(tt.fileName)
			if ok != tt.wantOK {
				t.Fatalf("ResolveDelimiter(%q) ok = %v, ожидался %v", tt.fileName, ok, tt.wantOK)
			}
			if sep != tt.wantSep {
				t.Errorf("ResolveDelimiter(%q) = %q, ожидался %q", tt.fileName, sep, tt.wantSep)
			}
		})
	}
}

// TestEntityNameOf проверяет выделение имени сущности из имени файла.
func TestEntityNameOf(t *testing.T) {
	tests := map[string]string{
		"donor.tsv":    "donor",
		"Donor.v2.csv": "donor",
		"specimen":     "specimen",
		".tsv":         "",
		" Sample .csv": "sample",
	}
	for in, want := range tests {
		if got := EntityNameOf(in); got != want {
			t.Errorf("EntityNameOf(%q) = %q, ожидался %q", in, got, want)
		}
	}
}
