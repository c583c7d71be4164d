package session

import (
	"strings"
	"testing"
)

func TestExtractProductsHandlesVariations(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"quiero un pave de maracuya", "Maracuyá"},
		{"tienen de milo?", "Pave de Milo"},
		{"uno de areqipe porfa", "Arequipe"},
		{"el de dulce de leche", "Arequipe"},
		{"me das uno de klim", "Leche Klim"},
	}

	for _, tc := range cases {
		got := ExtractProducts(tc.message)
		if len(got) == 0 || got[0] != tc.want {
			t.Fatalf("ExtractProducts(%q) = %v, want %q", tc.message, got, tc.want)
		}
	}
}

func TestExtractSizes(t *testing.T) {
	got := ExtractSizes("uno de 8 y uno grande")
	if len(got) != 2 {
		t.Fatalf("sizes = %v, want both", got)
	}
	if got[0] != "8 Onzas" || got[1] != "16 Onzas" {
		t.Fatalf("sizes = %v", got)
	}
}

func TestApplyMessageTracksTopic(t *testing.T) {
	c := Context{Sender: "+57300", Phase: PhaseGreeting}

	ApplyMessage(&c, "quiero maracuya")
	if c.LastTopic != "eligiendo_productos" {
		t.Fatalf("topic = %q", c.LastTopic)
	}

	ApplyMessage(&c, "de milo de 16 onzas")
	if c.LastTopic != "especificando_tamaños" {
		t.Fatalf("topic = %q", c.LastTopic)
	}

	ApplyMessage(&c, "dos")
	if c.LastTopic != "especificando_cantidades" {
		t.Fatalf("topic = %q", c.LastTopic)
	}
}

func TestInterpretVagueSizeResolvesSingleProduct(t *testing.T) {
	c := Context{DiscussedProducts: []string{"Maracuyá"}}

	got := InterpretVagueReference("uno de 16", c)
	if !strings.Contains(got, "Interpreto que quieres:") || !strings.Contains(got, "Maracuyá 16oz") {
		t.Fatalf("annotation = %q", got)
	}
}

func TestInterpretVagueQuantityAsksForSize(t *testing.T) {
	c := Context{DiscussedProducts: []string{"Arequipe"}}

	got := InterpretVagueReference("dos", c)
	if !strings.Contains(got, "Arequipe") || !strings.Contains(got, "tamaño") {
		t.Fatalf("annotation = %q", got)
	}
}

func TestInterpretSameAgainRepeatsProduct(t *testing.T) {
	c := Context{DiscussedProducts: []string{"Pave de Milo"}}

	got := InterpretVagueReference("otro igual porfa", c)
	if got != "Interpreto que quieres otro Pave de Milo" {
		t.Fatalf("annotation = %q", got)
	}
}

func TestInterpretExplicitMessageNeedsNoAnnotation(t *testing.T) {
	c := Context{DiscussedProducts: []string{"Maracuyá"}}

	if got := InterpretVagueReference("quiero un pave de milo de 8 onzas", c); got != "" {
		t.Fatalf("annotation = %q, want none for explicit message", got)
	}
}

func TestInterpretSkipsEchoedInterpretation(t *testing.T) {
	c := Context{DiscussedProducts: []string{"Maracuyá"}}

	if got := InterpretVagueReference("Interpreto que quieres: Maracuyá 16oz", c); got != "" {
		t.Fatalf("annotation = %q, want none", got)
	}
}

func TestInterpretNoContextNoAnnotation(t *testing.T) {
	if got := InterpretVagueReference("dos de 16", Context{}); got != "" {
		t.Fatalf("annotation = %q, want none without discussed products", got)
	}
}
