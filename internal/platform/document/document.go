// Package document renders patient medical history documents.
package document

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/jung-kurt/gofpdf"
)

// ContentType is the media type produced by PDFRenderer.
const ContentType = "application/pdf"

// PatientSummary is the demographic header of a history document.
type PatientSummary struct {
	FirstName      string
	LastName       string
	DocumentNumber string
	BirthDate      time.Time
	Gender         string
	Email          string
	PhoneNumber    *string
}

// HistoryEntry is one medical record in a history document.
type HistoryEntry struct {
	RecordDate      time.Time
	DoctorName      string
	DoctorSpecialty string
	Diagnosis       string
	Treatment       *string
	Prescription    *string
	Notes           *string
}

// Renderer turns a patient history into a document.
type Renderer interface {
	Render(patient PatientSummary, entries []HistoryEntry, generatedAt time.Time) ([]byte, error)
}

// FileName returns medical_history_<First>_<Last>_<yyyymmdd>.pdf with
// unsafe characters replaced.
func FileName(p PatientSummary, at time.Time) string {
	return fmt.Sprintf("medical_history_%s_%s_%s.pdf", safeName(p.FirstName), safeName(p.LastName), at.Format("20060102"))
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
			return r
		}
		return '_'
	}, s)
}

// PDFRenderer renders A4 history documents with gofpdf.
type PDFRenderer struct {
	Title string
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{Title: "Medical History"}
}

// Render lists entries newest first. An empty history still produces a
// document with the patient header.
func (r *PDFRenderer) Render(patient PatientSummary, entries []HistoryEntry, generatedAt time.Time) ([]byte, error) {
	sorted := append([]HistoryEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RecordDate.After(sorted[j].RecordDate)
	})

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10,
			fmt.Sprintf("Generated %s - Page %d", generatedAt.Format("02/01/2006 15:04"), pdf.PageNo()),
			"", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(30, 90, 170)
	pdf.CellFormat(0, 12, tr(r.Title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetTextColor(0, 0, 0)
	phone := "Not provided"
	if patient.PhoneNumber != nil && *patient.PhoneNumber != "" {
		phone = *patient.PhoneNumber
	}
	addDetail(pdf, tr, "Patient", patient.FirstName+" "+patient.LastName)
	addDetail(pdf, tr, "Document", patient.DocumentNumber)
	addDetail(pdf, tr, "Birth date", patient.BirthDate.Format("02/01/2006"))
	addDetail(pdf, tr, "Gender", patient.Gender)
	addDetail(pdf, tr, "Email", patient.Email)
	addDetail(pdf, tr, "Phone", phone)

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 10, "Consultations", "B", 1, "L", false, 0, "")

	if len(sorted) == 0 {
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 10, "No medical records available.", "", 1, "L", false, 0, "")
	}
	for _, e := range sorted {
		pdf.Ln(3)
		pdf.SetFillColor(240, 240, 240)
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, "Date: "+e.RecordDate.Format("02/01/2006"), "", 1, "L", true, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("Doctor: %s - %s", e.DoctorName, e.DoctorSpecialty)), "", "L", true)
		pdf.MultiCell(0, 6, tr("Diagnosis: "+e.Diagnosis), "", "L", true)
		optionalLine(pdf, tr, "Treatment", e.Treatment)
		optionalLine(pdf, tr, "Prescription", e.Prescription)
		optionalLine(pdf, tr, "Notes", e.Notes)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render medical history: %w", err)
	}
	return buf.Bytes(), nil
}

func addDetail(pdf *gofpdf.Fpdf, tr func(string) string, label, value string) {
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(40, 8, label, "", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 8, tr(value), "", 1, "", false, 0, "")
}

func optionalLine(pdf *gofpdf.Fpdf, tr func(string) string, label string, value *string) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return
	}
	pdf.MultiCell(0, 6, tr(label+": "+*value), "", "L", true)
}
