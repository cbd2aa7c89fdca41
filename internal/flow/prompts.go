package flow

// Fixed intake replies.
const (
	GreetingReply = "¡Hola! 👋 Soy el asistente de Plubot. Creamos chatbots para WhatsApp que atienden a tus clientes 24/7. " +
		"¿Te gustaría saber cómo funciona o conocer nuestros precios?"
	PricingReply = "Tenemos un plan gratuito con 100 mensajes al mes y un plan premium con mensajes ilimitados. " +
		"Para recomendarte el mejor, ¿qué tipo de negocio tienes?"
	PricingShortReply = "Plan gratuito: 100 mensajes al mes. Plan premium: mensajes ilimitados. ¡Puedes empezar gratis hoy mismo!"
	DefaultReply      = "¡Gracias por escribirnos! Para ayudarte mejor, cuéntame: ¿qué tipo de negocio tienes?"
	CTAReply          = "¡Excelente decisión! 🚀 Para preparar tu chatbot, ¿qué tipo de negocio tienes?"
	AskNeedsReply     = "¡Perfecto! ¿Qué te gustaría que haga tu chatbot? Por ejemplo: ventas, soporte o reservas."
	MoreNeedsReply    = "Anotado ✍️. ¿Necesitas algo más? Escribe \"listo\" cuando termines."

	AskSalesDetailsReply        = "¿Qué productos o servicios vendes y cómo cierras tus ventas hoy?"
	AskSupportDetailsReply      = "¿Cuáles son las preguntas más frecuentes que te hacen tus clientes?"
	AskReservationsDetailsReply = "¿Cómo gestionas hoy tus reservas y con cuánta anticipación reservan tus clientes?"

	DoneReply = "¡Listo! Con esta información ya podemos armar tu chatbot. Un asesor de Plubot te contactará pronto. " +
		"Mientras tanto, puedes registrarte gratis en plubot.com."
	DoneCTAReply = "¡Genial! Regístrate gratis en plubot.com y crea tu primer chatbot en minutos. 🚀"
)

// MarketingPrompt is the system prompt for open questions before the lead
// has described their business.
const MarketingPrompt = `Eres el asistente comercial de Plubot, una plataforma de Quantum Web que permite a cualquier negocio crear su propio chatbot para WhatsApp sin programar.

Lo que ofrece Plubot:
- Chatbots que responden 24/7 con el tono y la información de cada negocio.
- Flujos de respuestas automáticas configurables (preguntas frecuentes, precios, horarios).
- Respuestas inteligentes con IA cuando ningún flujo aplica.
- Conexión con el número de WhatsApp del negocio.
- Plan gratuito con 100 mensajes al mes y plan premium con mensajes ilimitados.

Responde en español, de forma clara y cercana, en no más de 3 frases. Termina invitando a la persona a contarte qué tipo de negocio tiene.`

// PersonaPrompt is the short system prompt once the intake is finished.
const PersonaPrompt = "Eres el asistente de Plubot. Responde en español, breve y amable (máximo 2 frases). " +
	"Si preguntan por algo que no sabes, ofrece que un asesor los contacte."

// AssistantPrompt is the system prompt of the stateless website assistant.
const AssistantPrompt = "Eres QuantumBot, un asistente virtual de Quantum Web. Responde de manera amigable, breve y directa, " +
	"usando un tono alegre. Limítate a respuestas cortas (máximo 2-3 frases). " +
	"Si es posible, incluye un emoji o icono relevante al final de tu respuesta."
