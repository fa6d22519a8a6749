// Package idcard renders printable identity cards carrying a user's QR token.
package idcard

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"time"

	"github.com/sakif/student-data-vault/internal/model"
)

// Institution is printed on every card.
const Institution = "Student Data Vault"

// qrRenderer turns ?data=<token> into a QR code image.
const qrRenderer = "https://api.qrserver.com/v1/create-qr-code/"

//go:embed templates/card.html
var templateFS embed.FS

// Card is the data printed on an ID card.
type Card struct {
	UserID      string `json:"userId"`
	FullName    string `json:"fullName"`
	Role        string `json:"role"`
	QRCode      string `json:"qrCode"`
	QRImageURL  string `json:"qrImageUrl"`
	Class       string `json:"class"`
	IssuedDate  string `json:"issuedDate"`
	Institution string `json:"institution"`
}

// Renderer holds the parsed card templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates once.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/card.html")
	if err != nil {
		return nil, fmt.Errorf("idcard: parsing templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// QRImageURL returns the external renderer URL for token.
func QRImageURL(token string) string {
	return qrRenderer + "?data=" + url.QueryEscape(token)
}

// NewCard builds the card for u issued at the given time.
func NewCard(u *model.User, issued time.Time) Card {
	return Card{
		UserID:      u.UserID,
		FullName:    u.FullName,
		Role:        string(u.Role),
		QRCode:      u.QRToken,
		QRImageURL:  QRImageURL(u.QRToken),
		Class:       u.Class,
		IssuedDate:  issued.Format("2006-01-02"),
		Institution: Institution,
	}
}

// Fragment renders the card as an embeddable HTML snippet.
func (r *Renderer) Fragment(c Card) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, "card", c); err != nil {
		return "", fmt.Errorf("idcard: rendering card: %w", err)
	}
	return buf.String(), nil
}

// Page writes a standalone printable HTML page for the card.
func (r *Renderer) Page(w io.Writer, c Card) error {
	if err := r.templates.ExecuteTemplate(w, "page", c); err != nil {
		return fmt.Errorf("idcard: rendering page: %w", err)
	}
	return nil
}
