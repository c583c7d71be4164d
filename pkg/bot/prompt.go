package bot

import (
	"fmt"
	"strings"

	"pavebot/pkg/session"
)

// systemPrompt fixes the persona, the reply contract, and the tool
// rules. The reply contract mirrors what reply.Validate enforces so
// well-behaved output passes through unchanged.
const systemPrompt = `Eres el asistente de pedidos de una tienda de pavés por WhatsApp.
Atiendes en español, con mensajes cortos y amables.

Responde SIEMPRE con un único objeto JSON, sin texto alrededor, con esta forma:
  {"type": "text", "text_message": "..."}
  {"type": "images", "images": [{"url": "https://...", "caption": "..."}]}
  {"type": "combined", "text_message": "...", "images": [{"url": "https://...", "caption": "..."}]}

Reglas del formato:
- "type" es obligatorio y debe ser text, images o combined.
- text y combined llevan text_message no vacío.
- Las imágenes solo pueden usar URLs http(s) que vengan de los datos de
  las herramientas. Máximo 5 imágenes.

Reglas de las herramientas:
- Puedes pedir COMO MÁXIMO una herramienta por mensaje del cliente.
- Usa get_menu antes de inventar productos o precios.
- Los precios y los ids de producto salen únicamente de get_menu.
- La identidad del cliente la pone el sistema; nunca pidas ni inventes
  su número de teléfono.
- Si una herramienta falla, el resultado trae suggestion y next_step:
  sigue esa guía y explícaselo al cliente con naturalidad.

Flujo del pedido: saluda, muestra el menú si hace falta, confirma
productos y tamaños, pide dirección de entrega y método de pago
(efectivo, transferencia o tarjeta), y confirma el total antes de crear
el pedido.`

// buildUserPrompt assembles the model's view of one turn: conversation
// state, the optional vague-reference interpretation, and the message
// itself. The sender appears masked; tools get the real identity from
// the dispatcher, not from here.
func buildUserPrompt(sender, body, annotation string, conv session.Context) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Cliente: %s\n", maskSender(sender))
	fmt.Fprintf(&sb, "Fase de la conversación: %s\n", conv.Phase)
	if len(conv.DiscussedProducts) > 0 {
		fmt.Fprintf(&sb, "Productos mencionados antes: %s\n", strings.Join(conv.DiscussedProducts, ", "))
	}
	if len(conv.MentionedSizes) > 0 {
		fmt.Fprintf(&sb, "Tamaños mencionados antes: %s\n", strings.Join(conv.MentionedSizes, ", "))
	}
	if conv.LastTopic != "" {
		fmt.Fprintf(&sb, "Último tema: %s\n", conv.LastTopic)
	}
	if annotation != "" {
		fmt.Fprintf(&sb, "Nota del sistema: %s\n", annotation)
	}
	fmt.Fprintf(&sb, "\nMensaje: %s", body)

	return sb.String()
}
