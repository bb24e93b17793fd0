package notifications

import (
	"context"
	"encoding/base64"
	"html/template"
	"strings"
	"time"

	"mekassarat_back_end/internal/models"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/skip2/go-qrcode"
)

// InvoiceRenderer produit la facture PDF jointe à la confirmation
type InvoiceRenderer interface {
	Render(ctx context.Context, order models.Order) ([]byte, error)
}

// OrderLink pointe vers la page de suivi côté front
func OrderLink(frontURL string, order models.Order) string {
	return strings.TrimRight(frontURL, "/") + "/orders/" + order.ID.String()
}

// OrderQR encode le lien de suivi de la commande en PNG
func OrderQR(frontURL string, order models.Order) ([]byte, error) {
	return qrcode.Encode(OrderLink(frontURL, order), qrcode.Medium, 256)
}

// ChromeInvoices imprime la facture HTML avec un Chrome headless
type ChromeInvoices struct {
	frontURL string
	timeout  time.Duration
}

func NewChromeInvoices(frontURL string) *ChromeInvoices {
	return &ChromeInvoices{frontURL: frontURL, timeout: 30 * time.Second}
}

// InvoiceHTML rend la facture sans passer par le navigateur
func InvoiceHTML(frontURL string, order models.Order) (string, error) {
	qr := ""
	if png, err := OrderQR(frontURL, order); err == nil {
		qr = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}
	return execute(invoiceTmpl, map[string]any{
		"Order": order,
		"QR":    template.URL(qr),
	})
}

func (c *ChromeInvoices) Render(ctx context.Context, order models.Order) ([]byte, error) {
	html, err := InvoiceHTML(c.frontURL, order)
	if err != nil {
		return nil, err
	}

	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	// timeout pour éviter de bloquer le worker
	ctx, cancel = context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var pdf []byte
	err = chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}
