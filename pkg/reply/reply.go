// Package reply defines the structured reply contract between the
// orchestrator, the model, and outbound delivery. Model output is never
// trusted: everything passes through Validate before leaving the bot.
package reply

import (
	"encoding/json"
	"strings"
)

// Type tags the reply union.
type Type string

const (
	TypeText     Type = "text"
	TypeImages   Type = "images"
	TypeCombined Type = "combined"
)

// maxImages caps the image list on any reply.
const maxImages = 5

// Fixed user-facing strings. These are the only messages a sender ever
// sees when something goes wrong internally.
const (
	DefaultPrompt      = "¿En qué puedo ayudarte?"
	NotUnderstood      = "Perdón, no entendí. ¿Puedes repetirlo?"
	ParseFailure       = "Hubo un error procesando tu pedido. ¿Puedes intentar de nuevo?"
	Unavailable        = "Tuvimos un problema momentáneo. Intenta de nuevo."
	Delayed            = "Estamos experimentando demoras. Intenta de nuevo."
	Throttled          = "Demasiados mensajes. Espera un momento."
	InternalError      = "Ocurrió un error. Intenta de nuevo en unos momentos."
)

// Image is one outbound picture with an optional caption.
type Image struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// StructuredReply is the tagged union the orchestrator always produces:
// text, images, or both.
type StructuredReply struct {
	Type    Type    `json:"type"`
	Message string  `json:"text_message,omitempty"`
	Images  []Image `json:"images,omitempty"`
}

// Text builds a plain text reply.
func Text(message string) StructuredReply {
	return StructuredReply{Type: TypeText, Message: message}
}

// Parse decodes raw model output and validates it. Undecodable output
// becomes the fixed parse-failure text instead of an error.
func Parse(raw string) StructuredReply {
	var r StructuredReply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Text(ParseFailure)
	}

	return Validate(r)
}

// Validate repairs a claimed StructuredReply into a well-formed one.
// Rules, in order: unknown tags coerce to text with the default prompt;
// text/combined require a non-empty trimmed message; image lists are
// filtered to http(s) URLs and capped, and an empty result downgrades
// the reply to text. Validate is a fixed point: validating its own
// output changes nothing.
func Validate(r StructuredReply) StructuredReply {
	switch r.Type {
	case TypeText, TypeImages, TypeCombined:
	default:
		r.Type = TypeText
		r.Images = nil
		if strings.TrimSpace(r.Message) == "" {
			r.Message = NotUnderstood
		}
		return r
	}

	if r.Type == TypeText || r.Type == TypeCombined {
		r.Message = strings.TrimSpace(r.Message)
		if r.Message == "" {
			r.Message = DefaultPrompt
		}
	}

	if r.Type == TypeImages || r.Type == TypeCombined {
		r.Images = filterImages(r.Images)
		if len(r.Images) == 0 {
			r.Type = TypeText
			if strings.TrimSpace(r.Message) == "" {
				r.Message = DefaultPrompt
			}
		}
	} else {
		r.Images = nil
	}

	return r
}

// IsHTTPURL reports whether u is a syntactically plausible http(s) URL.
func IsHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func filterImages(images []Image) []Image {
	clean := make([]Image, 0, len(images))
	for _, img := range images {
		if !IsHTTPURL(img.URL) {
			continue
		}
		clean = append(clean, img)
		if len(clean) == maxImages {
			break
		}
	}

	if len(clean) == 0 {
		return nil
	}
	return clean
}
