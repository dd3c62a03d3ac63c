package document

import (
	"bytes"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func testPatient() PatientSummary {
	return PatientSummary{
		FirstName:      "Ana",
		LastName:       "Gómez",
		DocumentNumber: "CC-1001",
		BirthDate:      time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC),
		Gender:         "F",
		Email:          "ana@example.com",
	}
}

func TestPDFRenderer_Render(t *testing.T) {
	entries := []HistoryEntry{
		{RecordDate: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), DoctorName: "Luis Ruiz", DoctorSpecialty: "Cardiology", Diagnosis: "Hypertension", Treatment: strPtr("Diet")},
		{RecordDate: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), DoctorName: "Luis Ruiz", DoctorSpecialty: "Cardiology", Diagnosis: "Follow-up", Notes: strPtr("Stable")},
	}
	out, err := NewPDFRenderer().Render(testPatient(), entries, time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Errorf("expected PDF header, got %q", out[:8])
	}
	if entries[0].Diagnosis != "Hypertension" {
		t.Error("Render must not reorder the caller's slice")
	}
}

func TestPDFRenderer_EmptyHistory(t *testing.T) {
	out, err := NewPDFRenderer().Render(testPatient(), nil, time.Now())
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if len(out) == 0 {
		t.Error("expected a document for an empty history")
	}
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		p    PatientSummary
		want string
	}{
		{"plain", PatientSummary{FirstName: "Ana", LastName: "Lopez"}, "medical_history_Ana_Lopez_20260401.pdf"},
		{"spaces and accents", PatientSummary{FirstName: "Ana María", LastName: "Gómez"}, "medical_history_Ana_Mar_a_G_mez_20260401.pdf"},
		{"header injection", PatientSummary{FirstName: "a\"\r\nb", LastName: "c;d"}, "medical_history_a___b_c_d_20260401.pdf"},
		{"empty", PatientSummary{}, "medical_history_unknown_unknown_20260401.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileName(tt.p, at); got != tt.want {
				t.Errorf("FileName() = %q, want %q", got, tt.want)
			}
		})
	}
}
