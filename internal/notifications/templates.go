package notifications

import (
	"bytes"
	"fmt"
	"html/template"

	"mekassarat_back_end/internal/models"
)

var funcs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f EGP", v) },
	"date":  func(o models.Order) string { return o.CreatedAt.Format("02/01/2006 15:04") },
}

const orderItemsTable = `{{define "items"}}
<table style="width:100%;border-collapse:collapse">
  <tr><th align="left">Produit</th><th>Qté</th><th align="right">Prix</th><th align="right">Total</th></tr>
  {{range .Items}}
  <tr>
    <td>{{.Name}}{{if .Weight}} ({{.Weight.Label}}){{end}}</td>
    <td align="center">{{.Quantity}}</td>
    <td align="right">{{money .Price}}</td>
    <td align="right">{{money .Total}}</td>
  </tr>
  {{end}}
</table>
<p>Sous-total : {{money .Pricing.ItemsPrice}}<br>
Taxe : {{money .Pricing.TaxPrice}}<br>
Livraison : {{money .Pricing.ShippingPrice}}<br>
<strong>Total : {{money .Pricing.TotalPrice}}</strong></p>
{{end}}`

var (
	confirmationTmpl = template.Must(template.New("confirmation").Funcs(funcs).Parse(orderItemsTable + `
<h2>Merci {{.Name}} !</h2>
<p>Votre commande <strong>{{.Order.OrderNumber}}</strong> du {{date .Order}} a bien été enregistrée.</p>
{{template "items" .Order}}
<p>Paiement : {{if eq .Order.Payment.Method "cod"}}à la livraison{{else}}par carte{{end}}</p>
<p>Livraison à : {{.Order.ShippingAddress.FullName}}, {{.Order.ShippingAddress.Street}}, {{.Order.ShippingAddress.City}}</p>
<p><img src="cid:qr.png" alt="QR"></p>
<p><a href="{{.Link}}">Suivre ma commande</a></p>`))

	adminTmpl = template.Must(template.New("admin").Funcs(funcs).Parse(orderItemsTable + `
<h2>Nouvelle commande {{.OrderNumber}}</h2>
<p>Client : {{.CustomerName}} &lt;{{.CustomerEmail}}&gt; - {{.ShippingAddress.Phone}}</p>
<p>Adresse : {{.ShippingAddress.Street}}, {{.ShippingAddress.City}} {{.ShippingAddress.Governorate}}</p>
<p>Paiement : {{.Payment.Method}} ({{.Payment.Status}})</p>
{{template "items" .}}
{{if .Notes}}<p>Notes : {{.Notes}}</p>{{end}}`))

	statusTmpl = template.Must(template.New("status").Funcs(funcs).Parse(`
<h2>Commande {{.OrderNumber}}</h2>
<p>Le statut de votre commande est maintenant : <strong>{{.Status}}</strong>.</p>
{{with .Refund}}<p>Un remboursement de {{money .Amount}} a été effectué.</p>{{end}}`))

	lowStockTmpl = template.Must(template.New("lowstock").Parse(`
<h2>Produits en stock faible</h2>
<ul>
{{range .}}<li>{{.Name}} : {{.Quantity}} restant(s) (seuil {{.Threshold}})</li>
{{end}}
</ul>`))

	invoiceTmpl = template.Must(template.New("invoice").Funcs(funcs).Parse(orderItemsTable + `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Facture {{.Order.OrderNumber}}</title></head>
<body style="font-family:sans-serif">
<h1>Mekassarat</h1>
<p>Facture n° {{.Order.OrderNumber}} - {{date .Order}}</p>
<p>{{.Order.ShippingAddress.FullName}}<br>{{.Order.ShippingAddress.Street}}<br>{{.Order.ShippingAddress.City}} {{.Order.ShippingAddress.PostalCode}}</p>
{{template "items" .Order}}
{{if .QR}}<img src="{{.QR}}" width="128" height="128">{{end}}
</body></html>`))
)

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderOrderConfirmation(order models.Order, name, frontURL string) (string, error) {
	if name == "" {
		name = order.CustomerName
	}
	return execute(confirmationTmpl, map[string]any{
		"Order": order,
		"Name":  name,
		"Link":  OrderLink(frontURL, order),
	})
}

func renderAdminNotification(order models.Order) (string, error) {
	return execute(adminTmpl, order)
}

func renderStatusUpdate(order models.Order) (string, error) {
	return execute(statusTmpl, order)
}

func renderLowStock(items []models.LowStockItem) (string, error) {
	return execute(lowStockTmpl, items)
}

// StatusSubject donne l'objet du mail pour un changement de statut
func StatusSubject(status models.OrderStatus) string {
	switch status {
	case models.OrderConfirmed:
		return "✅ Commande confirmée"
	case models.OrderShipped:
		return "🚚 Votre commande est en route"
	case models.OrderDelivered:
		return "📦 Commande livrée"
	case models.OrderCancelled:
		return "❌ Commande annulée"
	case models.OrderRefunded:
		return "💸 Commande remboursée"
	default:
		return "Mise à jour de votre commande"
	}
}
