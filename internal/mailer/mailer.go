package mailer

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MusawenkosiMagagula/caps-resources-website/internal/app/store"
)

// Mailer delivers the purchase email carrying the download links. Delivery is
// fire-and-forget from the pipeline's point of view: grants exist whether or
// not the email goes out.
type Mailer interface {
	SendPurchaseEmail(event *store.GrantNotificationEvent) error
}

type Config struct {
	Host        string
	Port        string
	Username    string
	Password    string
	From        string
	FrontendURL string
}

type smtpMailer struct {
	cfg    Config
	logger *zap.Logger
}

func NewSMTPMailer(cfg Config, logger *zap.Logger) Mailer {
	return &smtpMailer{cfg: cfg, logger: logger}
}

func (m *smtpMailer) SendPurchaseEmail(event *store.GrantNotificationEvent) error {
	subject := fmt.Sprintf("Your CAPS Resources - Order #%s", event.OrderID)
	body := composeBody(event, m.cfg.FrontendURL)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: CAPS Resources <%s>\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", event.Email)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(body)

	addr := m.cfg.Host + ":" + m.cfg.Port
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{event.Email}, []byte(msg.String())); err != nil {
		m.logger.Error("Failed to send purchase email",
			zap.String("order_id", event.OrderID),
			zap.Error(err))
		return fmt.Errorf("failed to send purchase email for order %s: %w", event.OrderID, err)
	}

	m.logger.Info("Purchase email sent",
		zap.String("order_id", event.OrderID),
		zap.Int("grants", len(event.Grants)))
	return nil
}

func composeBody(event *store.GrantNotificationEvent, frontendURL string) string {
	var b strings.Builder
	b.WriteString("Thank you for purchasing educational resources from CAPS Resources!\r\n")
	b.WriteString("Your order has been confirmed and your PDFs are ready to download.\r\n\r\n")
	b.WriteString("Your resources:\r\n")
	for _, grant := range event.Grants {
		title := grant.Title
		if title == "" {
			title = grant.ProductID
		}
		fmt.Fprintf(&b, "  - %s\r\n    %s/download/%s\r\n    valid until %s, up to %d downloads\r\n",
			title, frontendURL, grant.Token, grant.ExpiresAt.Format(time.RFC1123), grant.QuotaLimit)
	}
	fmt.Fprintf(&b, "\r\nOrder ID: %s\r\nTotal: R%.2f\r\n", event.OrderID, event.TotalAmount)
	b.WriteString("\r\nSave your PDFs to your device immediately; links expire.\r\n")
	b.WriteString("Questions? Contact support@capsresources.co.za\r\n")
	return b.String()
}
