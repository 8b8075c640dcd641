package campaign

import "testing"

func TestIsAffirmative(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"sí", true},
		{"si", true},
		{"Sí", true},
		{"SI", true},
		{"ok", true},
		{"OK", true},
		{"okay", true},
		{" sí ", true},
		{"no", false},
		{"no gracias", false},
		{"sí claro que sí", false},
		{"", false},
		{"síp", false},
	}
	for _, tt := range tests {
		if got := IsAffirmative(tt.text); got != tt.want {
			t.Errorf("IsAffirmative(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestConsentMessage(t *testing.T) {
	msg := ConsentMessage("Ana")
	if msg != "Hola Ana, ¿nos das permiso para llamarte?" {
		t.Errorf("unexpected consent message: %q", msg)
	}
	if !awaitingConsent(msg) {
		t.Error("consent message should be recognized as awaiting consent")
	}

	anon := ConsentMessage("")
	if !awaitingConsent(anon) {
		t.Errorf("anonymous consent message not recognized: %q", anon)
	}

	if awaitingConsent("Gracias por tu respuesta") {
		t.Error("ordinary reply mistaken for consent request")
	}
}

func TestValidNumber(t *testing.T) {
	valid := []string{"5551234", "5550001", "+525512345678"}
	invalid := []string{"abc", "", "555-1234", "12", "+"}

	for _, n := range valid {
		if !ValidNumber(n) {
			t.Errorf("ValidNumber(%q) = false, want true", n)
		}
	}
	for _, n := range invalid {
		if ValidNumber(n) {
			t.Errorf("ValidNumber(%q) = true, want false", n)
		}
	}
}
