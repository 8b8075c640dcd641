package campaign

import (
	"fmt"
	"strings"
)

// consentQuestion is the phrase that marks an outbound message as a consent
// request. When it is the contact's most recent outbound message, an
// affirmative reply escalates to a call.
const consentQuestion = "¿nos das permiso para llamarte?"

// ConsentMessage builds the initial permission request for a contact.
func ConsentMessage(name string) string {
	if name == "" {
		return "Hola, " + consentQuestion
	}
	return fmt.Sprintf("Hola %s, %s", name, consentQuestion)
}

func awaitingConsent(lastOutbound string) bool {
	return strings.Contains(lastOutbound, consentQuestion)
}

var diacritics = strings.NewReplacer(
	"á", "a",
	"é", "e",
	"í", "i",
	"ó", "o",
	"ú", "u",
	"ü", "u",
	"ñ", "n",
)

// affirmatives is the fixed consent vocabulary, in normalized form.
var affirmatives = map[string]bool{
	"si":   true,
	"ok":   true,
	"okay": true,
}

func normalize(s string) string {
	return diacritics.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// IsAffirmative reports whether the text signals consent. Matching is
// case and diacritic insensitive ("Sí" and "si" are equivalent).
func IsAffirmative(text string) bool {
	return affirmatives[normalize(text)]
}
