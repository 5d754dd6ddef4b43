package alert

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/qs3c/deal_anal_server/config"
)

// Notifier 分析失败告警接口
type Notifier interface {
	NotifyFailure(dealID, jobID int64, step, errMsg string, at time.Time) error
}

type Service struct {
	cfg *config.AlertConfig
}

func NewService(cfg *config.AlertConfig) *Service {
	return &Service{cfg: cfg}
}

// NotifyFailure 发送分析失败告警邮件
func (s *Service) NotifyFailure(dealID, jobID int64, step, errMsg string, at time.Time) error {
	subject := fmt.Sprintf("分析失败告警 - Deal %d", dealID)
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #dc2626;">分析任务失败</h2>
        <table style="width: 100%%; border-collapse: collapse;">
            <tr><td style="padding: 6px 0; color: #6b7280;">Deal ID</td><td>%d</td></tr>
            <tr><td style="padding: 6px 0; color: #6b7280;">Job ID</td><td>%d</td></tr>
            <tr><td style="padding: 6px 0; color: #6b7280;">失败阶段</td><td>%s</td></tr>
            <tr><td style="padding: 6px 0; color: #6b7280;">时间</td><td>%s</td></tr>
        </table>
        <div style="background-color: #fef2f2; padding: 15px; margin: 20px 0; word-break: break-all;">
            %s
        </div>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, dealID, jobID, step, at.Format(time.RFC3339), errMsg)

	return s.sendHTML(s.cfg.Recipient, subject, body)
}

// sendHTML 发送 HTML 邮件
func (s *Service) sendHTML(to, subject, body string) error {
	headers := make(map[string]string)
	headers["From"] = s.cfg.From
	headers["To"] = to
	headers["Subject"] = subject
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=UTF-8"

	var msg strings.Builder
	for k, v := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String()))
}
