package reply

import "testing"

func TestParseRejectsNonJSON(t *testing.T) {
	got := Parse("hola, aquí está tu pedido")
	if got.Type != TypeText || got.Message != ParseFailure {
		t.Fatalf("Parse = %+v, want parse-failure text", got)
	}
}

func TestValidateCoercesUnknownTag(t *testing.T) {
	got := Validate(StructuredReply{Type: "audio", Message: "hola"})
	if got.Type != TypeText {
		t.Fatalf("type = %s, want text", got.Type)
	}
	if got.Message != "hola" {
		t.Fatalf("message = %q, want original kept", got.Message)
	}

	empty := Validate(StructuredReply{Type: "audio"})
	if empty.Message != NotUnderstood {
		t.Fatalf("message = %q, want not-understood text", empty.Message)
	}
}

func TestValidateFillsEmptyText(t *testing.T) {
	got := Validate(StructuredReply{Type: TypeText, Message: "   "})
	if got.Message != DefaultPrompt {
		t.Fatalf("message = %q, want default prompt", got.Message)
	}
}

func TestValidateFiltersAndCapsImages(t *testing.T) {
	images := []Image{
		{URL: "https://cdn.example/a.jpg"},
		{URL: "ftp://cdn.example/b.jpg"},
		{URL: "javascript:alert(1)"},
		{URL: "http://cdn.example/c.jpg"},
		{URL: "https://cdn.example/d.jpg"},
		{URL: "https://cdn.example/e.jpg"},
		{URL: "https://cdn.example/f.jpg"},
		{URL: "https://cdn.example/g.jpg"},
	}

	got := Validate(StructuredReply{Type: TypeImages, Images: images})
	if got.Type != TypeImages {
		t.Fatalf("type = %s, want images", got.Type)
	}
	if len(got.Images) != maxImages {
		t.Fatalf("images = %d, want %d", len(got.Images), maxImages)
	}
	for _, img := range got.Images {
		if !IsHTTPURL(img.URL) {
			t.Fatalf("non-http url survived: %s", img.URL)
		}
	}
}

func TestValidateDowngradesEmptyImageList(t *testing.T) {
	got := Validate(StructuredReply{Type: TypeImages, Images: []Image{{URL: "file:///etc/passwd"}}})
	if got.Type != TypeText {
		t.Fatalf("type = %s, want text downgrade", got.Type)
	}
	if got.Message != DefaultPrompt {
		t.Fatalf("message = %q, want default prompt", got.Message)
	}
}

func TestValidateCombinedKeepsBothParts(t *testing.T) {
	got := Validate(StructuredReply{
		Type:    TypeCombined,
		Message: "Aquí está el menú",
		Images:  []Image{{URL: "https://cdn.example/menu.jpg", Caption: "Menú"}},
	})
	if got.Type != TypeCombined || got.Message == "" || len(got.Images) != 1 {
		t.Fatalf("combined reply mangled: %+v", got)
	}
}

func TestValidateStripsImagesFromTextReplies(t *testing.T) {
	got := Validate(StructuredReply{Type: TypeText, Message: "hola", Images: []Image{{URL: "https://cdn.example/a.jpg"}}})
	if len(got.Images) != 0 {
		t.Fatalf("text reply kept images: %+v", got.Images)
	}
}

// Validating validated output must change nothing, on every shape.
func TestValidateIsFixedPoint(t *testing.T) {
	inputs := []StructuredReply{
		{Type: "garbage"},
		{Type: TypeText, Message: "  hola  "},
		{Type: TypeImages, Images: []Image{{URL: "not-a-url"}, {URL: "https://cdn.example/a.jpg"}}},
		{Type: TypeCombined, Message: "", Images: []Image{{URL: "https://cdn.example/a.jpg"}}},
		{Type: TypeCombined, Message: "ok", Images: nil},
	}

	for _, input := range inputs {
		once := Validate(input)
		twice := Validate(once)
		if once.Type != twice.Type || once.Message != twice.Message || len(once.Images) != len(twice.Images) {
			t.Fatalf("not a fixed point: %+v -> %+v -> %+v", input, once, twice)
		}
	}
}
