package resolver

import (
	"fmt"
	"strings"

	"github.com/quantumweb/plubot/internal/llm"
	"github.com/quantumweb/plubot/internal/models"
	"github.com/quantumweb/plubot/internal/tone"
)

// MaxDocumentChars bounds the extracted document text put in a prompt.
const MaxDocumentChars = 6000

// BuildSystemPrompt renders a chatbot's configuration as its system prompt.
func BuildSystemPrompt(bot *models.Chatbot) string {
	var sb strings.Builder

	name := strings.TrimSpace(bot.Name)
	if name == "" {
		name = "el asistente virtual"
	}
	sb.WriteString(fmt.Sprintf("Eres %s, el asistente virtual de WhatsApp de este negocio.\n", name))
	if p := strings.TrimSpace(bot.Purpose); p != "" {
		sb.WriteString(fmt.Sprintf("Tu propósito: %s.\n", strings.TrimRight(p, ".")))
	}
	if g := tone.Guide(bot.Tone); g != "" {
		sb.WriteString("\n")
		sb.WriteString(g)
	}
	if info := strings.TrimSpace(bot.BusinessInfo); info != "" {
		sb.WriteString("\n=== INFORMACIÓN DEL NEGOCIO ===\n")
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	if doc := strings.TrimSpace(bot.DocumentText); doc != "" {
		sb.WriteString("\n=== DOCUMENTOS DE REFERENCIA ===\n")
		sb.WriteString(truncateRunes(doc, MaxDocumentChars))
		sb.WriteString("\n")
	}
	if greet := strings.TrimSpace(bot.InitialMessage); greet != "" {
		sb.WriteString(fmt.Sprintf("\nSi el cliente recién saluda, responde con: %q\n", greet))
	}

	sb.WriteString("\nInstrucciones:\n")
	sb.WriteString("- Responde en el idioma del cliente, en no más de 3 frases.\n")
	sb.WriteString("- Usa solo la información de arriba para datos concretos (precios, horarios, productos).\n")
	sb.WriteString("- Si no sabes algo, dilo con honestidad y ofrece otra forma de ayudar.\n")
	return sb.String()
}

// BuildMessages assembles the LLM input: system prompt, history oldest
// first, then the new message.
func BuildMessages(bot *models.Chatbot, history []models.Turn, text string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.SystemMessage(BuildSystemPrompt(bot)))
	for _, t := range history {
		switch t.Role {
		case models.RoleAssistant:
			msgs = append(msgs, llm.AssistantMessage(t.Message))
		case models.RoleUser:
			msgs = append(msgs, llm.UserMessage(t.Message))
		}
	}
	return append(msgs, llm.UserMessage(text))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
