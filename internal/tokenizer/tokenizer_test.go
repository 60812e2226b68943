package tokenizer

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The Board approved new climate targets, and emissions fell 12%!")
	got := make([]string, len(tokens))
	for i, tok := range tokens {
		got[i] = tok.Term
		if tok.Position != i {
			t.Errorf("token %q position = %d, want %d", tok.Term, tok.Position, i)
		}
	}
	want := []string{"board", "approv", "new", "climate", "target", "emission", "fell", "12"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("terms = %v, want %v", got, want)
	}
}

func TestTokenizeDropsNoise(t *testing.T) {
	if got := Terms("a I of the - ."); len(got) != 0 {
		t.Errorf("Terms() = %v, want none", got)
	}
}

func TestStem(t *testing.T) {
	cases := map[string]string{
		"emissions":   "emission",
		"policies":    "policy",
		"reporting":   "report",
		"governance":  "governance",
		"operational": "operate",
		"gas":         "gas",
		"progress":    "progress",
		"status":      "status",
		"additional":  "addition",
	}
	for in, want := range cases {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStemPluralsMatchSingulars(t *testing.T) {
	pairs := []struct{ singular, plural, want string }{
		{"emission", "emissions", "emission"},
		{"target", "targets", "target"},
		{"reporter", "reporters", "report"},
		{"policy", "policies", "policy"},
		{"process", "processes", "process"},
		{"operation", "operations", "operation"},
		{"offering", "offerings", "off"},
		{"community", "communities", "community"},
	}
	for _, p := range pairs {
		if got := Stem(p.singular); got != p.want {
			t.Errorf("Stem(%q) = %q, want %q", p.singular, got, p.want)
		}
		if got := Stem(p.plural); got != p.want {
			t.Errorf("Stem(%q) = %q, want %q", p.plural, got, p.want)
		}
	}
}

func TestStemIsIdempotent(t *testing.T) {
	words := []string{
		"emissions", "emission", "reporters", "offerings", "operational",
		"additional", "policies", "processes", "status", "analysis",
		"approved", "reporting", "sustainability", "governance", "gas",
	}
	for _, w := range words {
		once := Stem(w)
		if twice := Stem(once); twice != once {
			t.Errorf("Stem(Stem(%q)) = %q, Stem(%q) = %q", w, twice, w, once)
		}
	}
}

func BenchmarkTokenize(b *testing.B) {
	text := `Our climate strategy targets net zero emissions across operations by 2040.
	The board oversees governance of sustainability risks and community programmes.`
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = Tokenize(text)
	}
}
