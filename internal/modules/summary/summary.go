// README: Trip summary text, its QR artifact and the printable PDF.
package summary

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	qrSize     = 256
	timeLayout = "2006-01-02 15:04:05"
)

type Leg struct {
	Origin      string
	Destination string
	Duration    int
}

// Trip is the data a summary is built from. Legs are in trip order.
type Trip struct {
	ID          string
	Status      string
	Moderator   string
	Legs        []Leg
	CompletedAt *time.Time
}

func (t Trip) Total() int {
	total := 0
	for _, l := range t.Legs {
		total += l.Duration
	}
	return total
}

// Compose renders the summary text. Output depends only on t.
func Compose(t Trip) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trip #%s\n", t.ID)
	fmt.Fprintf(&b, "Status: %s\n", t.Status)
	fmt.Fprintf(&b, "Moderator: %s\n\n", t.Moderator)
	b.WriteString("Routes:\n")
	for i, l := range t.Legs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s → %s (%d min)", l.Origin, l.Destination, l.Duration)
	}
	fmt.Fprintf(&b, "\n\nTotal duration: %d min", t.Total())
	fmt.Fprintf(&b, "\nCompleted at: %s", completedAt(t.CompletedAt))
	return b.String()
}

// Encode turns text into a base64 PNG QR code.
func Encode(text string) (string, error) {
	png, err := qrcode.Encode(text, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// Generate composes and encodes the summary artifact of t.
func Generate(t Trip) (string, error) {
	return Encode(Compose(t))
}

func completedAt(t *time.Time) string {
	if t == nil {
		return "not completed"
	}
	return t.UTC().Format(timeLayout) + " UTC"
}
