package flow

import "strings"

// Keyword sets are matched as substrings of the lower-cased message.
var (
	greetingKeywords = []string{
		"hola", "buenas", "buenos días", "buenos dias", "buen día", "buen dia",
		"saludos", "qué tal", "que tal", "hey",
	}
	priceKeywords = []string{
		"precio", "costo", "cuesta", "cuánto", "cuanto", "tarifa", "plan", "valor", "pagar", "gratis",
	}
	infoKeywords = []string{
		"información", "informacion", "info", "qué es", "que es", "cómo funciona", "como funciona",
		"qué hacen", "que hacen", "para qué sirve", "para que sirve", "plubot",
	}
	businessKeywords = []string{
		"tienda", "restaurante", "negocio", "empresa", "emprendimiento", "clínica", "clinica",
		"consultorio", "hotel", "cafetería", "cafeteria", "salón", "salon", "gimnasio",
		"academia", "ecommerce", "inmobiliaria", "agencia",
	}
	ctaKeywords = []string{
		"quiero", "comprar", "contratar", "empezar", "comenzar", "registrarme", "suscribirme",
		"probar", "demo", "me interesa",
	}
)

// doneToken ends the needs list.
const doneToken = "listo"

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func IsGreeting(text string) bool     { return containsAny(normalize(text), greetingKeywords) }
func IsPriceQuestion(text string) bool { return containsAny(normalize(text), priceKeywords) }
func IsInfoRequest(text string) bool   { return containsAny(normalize(text), infoKeywords) }
func MentionsBusiness(text string) bool {
	return containsAny(normalize(text), businessKeywords)
}
func IsCallToAction(text string) bool { return containsAny(normalize(text), ctaKeywords) }
