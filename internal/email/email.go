package email

import (
	"fmt"
	"net/smtp"

	"github.com/ZXMushroom63/adschat-server/internal/models"
)

var server string
var address string
var username string
var password string
var development bool

func Setup(cfg *models.ConfigFile) {
	server = cfg.SmtpServer
	address = fmt.Sprintf("%s:%d", cfg.SmtpServer, cfg.SmtpPort)
	username = cfg.SmtpUsername
	password = cfg.SmtpPassword
	development = cfg.Development

	if development {
		go localhostListener()
	}
}

func sendEmail(email []string, subject string, message string) error {
	if development {
		return storeManual(email[0], subject, message)
	}

	auth := smtp.PlainAuth("", username, password, server)

	msg := fmt.Appendf(nil, "To: %s\r\n", email[0])
	msg = fmt.Append(msg, "MIME-version: 1.0;\r\n")
	msg = fmt.Append(msg, "Content-Type: text/html; charset=\"UTF-8\";\r\n")
	msg = fmt.Appendf(msg, "Subject: %s\r\n", subject)
	msg = fmt.Append(msg, "\r\n")
	msg = fmt.Appendf(msg, "%s\r\n", message)

	return smtp.SendMail(address, auth, username, email, msg)
}

func SendConfirmCodeMail(code string, email string) error {
	subject := "Confirm your email"
	message := fmt.Sprintf(`
	<html>
		<body>
			<h2>Almost there!</h2>
			<p>Your confirmation code is <b>%s</b></p>
		</body>
	</html>`,
		code)

	return sendEmail([]string{email}, subject, message)
}

func SendResetPasswordMail(url string, email string) error {
	subject := "Reset your password"
	message := fmt.Sprintf(`
	<html>
		<body>
			<h2>Password reset requested</h2>
			<a href="%s">Reset your password by clicking here</a>
			<p>The link is valid for 1 hour. If you didn't request this, ignore this email.</p>
		</body>
	</html>`,
		url)

	return sendEmail([]string{email}, subject, message)
}
