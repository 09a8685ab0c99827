package completion

const (
	summarizeSystem = "Eres un asistente ejecutivo. Resume el correo en una sola oración en español, " +
		"sin saludos ni comillas."

	classifySystem = "Clasifica el mensaje del usuario en una de estas intenciones: " +
		"agenda, create_event, reply, send, ignore, cancel, chat. " +
		"Responde solo JSON: {\"intent\": \"...\"}."

	healthSystem = "Eres el asistente de un consultorio médico. Analiza el mensaje del paciente " +
		"considerando el historial. Responde solo JSON con las llaves " +
		"is_emergency (bool), needs_appointment (bool), needs_more_info (bool), " +
		"urgency (low|medium|high) y suggested_response (texto breve en español). " +
		"No des diagnósticos."

	parseEventSystem = "Extrae un evento de calendario del texto. Fecha y hora actual: %s (zona %s). " +
		"Responde solo JSON con title, start, end, location, attendees (lista de correos) y notes. " +
		"start y end en formato RFC 3339 con desplazamiento. Usa null si falta un dato."

	suggestSlotsSystem = "Propón horarios de una hora para una cita médica en los próximos %d días " +
		"(zona %s), entre 08:00 y 18:00, que no choquen con los eventos listados. " +
		"Responde solo JSON: {\"slots\": [{\"datetime\": \"RFC 3339\"}]}."
)
