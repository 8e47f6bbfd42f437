// README: Printable trip summary.
package summary

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/phpdave11/gofpdf"
)

// RenderPDF lays out a finished trip on one A4 page with its QR code.
// qr is the base64 PNG produced by Generate.
func RenderPDF(t Trip, qr string) ([]byte, error) {
	png, err := base64.StdEncoding.DecodeString(qr)
	if err != nil {
		return nil, fmt.Errorf("decode qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Trip #"+t.ID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "TRIP #"+t.ID)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, "Status    : "+t.Status)
	pdf.Ln(7)
	pdf.Cell(0, 7, "Moderator : "+safe(t.Moderator, "-"))
	pdf.Ln(7)
	pdf.Cell(0, 7, "Completed : "+completedAt(t.CompletedAt))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Routes:")
	pdf.Ln(8)

	// core fonts are cp1252, so the arrow is spelled out
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "", 11)
	for i, l := range t.Legs {
		pdf.Cell(0, 6, tr(fmt.Sprintf("%d) %s - %s (%d min)", i+1, l.Origin, l.Destination, l.Duration)))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Total duration: %d min", t.Total()))
	pdf.Ln(12)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("qr", pdf.GetX(), pdf.GetY(), 60, 60, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func safe(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
