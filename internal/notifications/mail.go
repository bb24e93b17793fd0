package notifications

import (
	"bytes"
	"context"
	"fmt"

	"mekassarat_back_end/internal/config"
	"mekassarat_back_end/internal/models"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// MailNotifier envoie les notifications par SMTP
type MailNotifier struct {
	cfg      config.SMTPConfig
	frontURL string
	invoices InvoiceRenderer
}

func NewMailNotifier(cfg config.SMTPConfig, frontURL string, invoices InvoiceRenderer) *MailNotifier {
	return &MailNotifier{cfg: cfg, frontURL: frontURL, invoices: invoices}
}

func (m *MailNotifier) client() (*mail.Client, error) {
	return mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
}

func (m *MailNotifier) newMsg(to, subject, html string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	return msg, nil
}

func (m *MailNotifier) send(ctx context.Context, msg *mail.Msg) error {
	if m.cfg.Host == "" {
		return fmt.Errorf("SMTP non configuré")
	}
	client, err := m.client()
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func (m *MailNotifier) SendOrderConfirmation(ctx context.Context, order models.Order, email, name string) Result {
	if email == "" {
		return failed(fmt.Errorf("aucun e-mail pour la commande %s", order.OrderNumber))
	}
	html, err := renderOrderConfirmation(order, name, m.frontURL)
	if err != nil {
		return failed(err)
	}
	msg, err := m.newMsg(email, "Confirmation de votre commande "+order.OrderNumber, html)
	if err != nil {
		return failed(err)
	}

	if qr, err := OrderQR(m.frontURL, order); err == nil {
		msg.EmbedReader("qr.png", bytes.NewReader(qr))
	} else {
		zap.L().Warn("⚠️ QR de commande non généré", zap.Error(err))
	}

	if m.invoices != nil {
		pdf, err := m.invoices.Render(ctx, order)
		if err != nil {
			zap.L().Warn("❌ Erreur génération PDF", zap.String("order", order.OrderNumber), zap.Error(err))
		} else {
			msg.AttachReader("facture_"+order.OrderNumber+".pdf", bytes.NewReader(pdf))
		}
	}

	if err := m.send(ctx, msg); err != nil {
		return failed(err)
	}
	return ok()
}

func (m *MailNotifier) SendAdminNotification(ctx context.Context, order models.Order) Result {
	if m.cfg.AdminEmail == "" {
		return failed(fmt.Errorf("ADMIN_EMAIL non configuré"))
	}
	html, err := renderAdminNotification(order)
	if err != nil {
		return failed(err)
	}
	msg, err := m.newMsg(m.cfg.AdminEmail, "🛒 Nouvelle commande "+order.OrderNumber, html)
	if err != nil {
		return failed(err)
	}
	if err := m.send(ctx, msg); err != nil {
		return failed(err)
	}
	return ok()
}

func (m *MailNotifier) SendStatusUpdate(ctx context.Context, order models.Order) Result {
	if order.CustomerEmail == "" {
		return failed(fmt.Errorf("aucun e-mail pour la commande %s", order.OrderNumber))
	}
	html, err := renderStatusUpdate(order)
	if err != nil {
		return failed(err)
	}
	msg, err := m.newMsg(order.CustomerEmail, StatusSubject(order.Status), html)
	if err != nil {
		return failed(err)
	}
	if err := m.send(ctx, msg); err != nil {
		return failed(err)
	}
	return ok()
}

func (m *MailNotifier) SendLowStockDigest(ctx context.Context, items []models.LowStockItem) Result {
	if m.cfg.AdminEmail == "" {
		return failed(fmt.Errorf("ADMIN_EMAIL non configuré"))
	}
	html, err := renderLowStock(items)
	if err != nil {
		return failed(err)
	}
	msg, err := m.newMsg(m.cfg.AdminEmail, fmt.Sprintf("⚠️ %d produit(s) en stock faible", len(items)), html)
	if err != nil {
		return failed(err)
	}
	if err := m.send(ctx, msg); err != nil {
		return failed(err)
	}
	return ok()
}
