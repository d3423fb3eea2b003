package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/qs3c/autolaku_server/config"
)

type Service struct {
	cfg *config.EmailConfig
}

func NewService(cfg *config.EmailConfig) *Service {
	return &Service{cfg: cfg}
}

// SendWelcome 订阅激活成功后发送欢迎邮件（由激活编排器在首次激活时触发一次）
func (s *Service) SendWelcome(to, username, plan string) error {
	subject := "订阅已激活 - Autolaku 跨境自动化平台"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">订阅已激活</h2>
        <p>%s，您好，</p>
        <p>您的 <strong>%s</strong> 套餐已完成支付并激活，现在可以登录控制台生成授权码。</p>
        <p>每个授权码同一时间只能绑定一台设备，可随时在控制台强制下线。</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, username, plan)

	return s.sendHTML(to, subject, body)
}

// SendPaymentFailed 支付失败提醒
func (s *Service) SendPaymentFailed(to, username string) error {
	subject := "支付未完成 - Autolaku 跨境自动化平台"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #dc2626;">支付未完成</h2>
        <p>%s，您好，</p>
        <p>您的订阅支付未能完成，账单可能已过期或被拒绝。您可以重新登录发起支付。</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, username)

	return s.sendHTML(to, subject, body)
}

func (s *Service) sendHTML(to, subject, body string) error {
	if s.cfg.SMTPHost == "" {
		return nil // 未配置邮件服务时静默跳过
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)

	headers := []string{
		fmt.Sprintf("From: %s", s.cfg.From),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}
	msg := strings.Join(headers, "\r\n") + "\r\n\r\n" + body

	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg))
}
