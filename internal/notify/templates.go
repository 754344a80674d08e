package notify

import (
	"fmt"
	"strings"
)

// Template identifies a localized notification.
type Template string

const (
	TemplateEingangsbestaetigung Template = "eingangsbestaetigung"
	TemplateRueckmeldung         Template = "rueckmeldung"
	TemplateFristReminder        Template = "frist_reminder"
	TemplateFristEskalation      Template = "frist_eskalation"
	TemplateTagesDigest          Template = "tages_digest"
)

// Render produces the deterministic German subject and body for a
// template. Unknown data keys are ignored; missing keys render empty.
func Render(t Template, data map[string]string) (subject, body string) {
	get := func(key string) string { return data[key] }

	switch t {
	case TemplateEingangsbestaetigung:
		subject = fmt.Sprintf("Eingangsbestätigung zu Ihrer Meldung %s", get("reference_code"))
		body = fmt.Sprintf(
			"Sehr geehrte Hinweisgeberin, sehr geehrter Hinweisgeber,\n\n"+
				"hiermit bestätigen wir den Eingang Ihrer Meldung %s gemäß § 17 HinSchG.\n"+
				"Sie erhalten spätestens bis zum %s eine Rückmeldung zum Stand der Bearbeitung.\n\n"+
				"Diese Nachricht wurde automatisch erzeugt.",
			get("reference_code"), get("rueckmeldung_frist"))

	case TemplateRueckmeldung:
		subject = fmt.Sprintf("Rückmeldung zu Ihrer Meldung %s", get("reference_code"))
		body = fmt.Sprintf(
			"Sehr geehrte Hinweisgeberin, sehr geehrter Hinweisgeber,\n\n"+
				"zu Ihrer Meldung %s liegt eine Rückmeldung gemäß § 17 HinSchG vor:\n\n%s\n\n"+
				"Diese Nachricht wurde automatisch erzeugt.",
			get("reference_code"), get("nachricht"))

	case TemplateFristReminder:
		subject = fmt.Sprintf("Fristerinnerung: Fall %s", get("case_number"))
		body = fmt.Sprintf(
			"Für den Fall %s läuft die Frist (%s) am %s ab.\n"+
				"Bitte bearbeiten Sie den Fall rechtzeitig.",
			get("case_number"), get("frist_typ"), get("due_at"))

	case TemplateFristEskalation:
		subject = fmt.Sprintf("FRIST ÜBERSCHRITTEN: Fall %s", get("case_number"))
		body = fmt.Sprintf(
			"Die Frist (%s) für den Fall %s ist am %s abgelaufen und wurde eskaliert.\n"+
				"Der Fall erfordert sofortige Bearbeitung.",
			get("frist_typ"), get("case_number"), get("due_at"))

	case TemplateTagesDigest:
		subject = "Tägliche Fristenübersicht"
		body = fmt.Sprintf(
			"Fristenübersicht für den %s:\n\n%s",
			get("datum"), get("uebersicht"))

	default:
		subject = "Benachrichtigung"
		body = strings.TrimSpace(get("nachricht"))
	}
	return subject, body
}
