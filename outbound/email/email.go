package email

import (
	"fmt"
	"github.com/spf13/viper"
	"net/smtp"
	"strings"
)

// EmailOutbound delivers transactional ticket mail (payment instructions,
// confirmations, cancellations, refunds) over plain SMTP.
type EmailOutbound struct {
	Cfg   *viper.Viper
	auth  smtp.Auth
	addr  string
	email string
}

func (out *EmailOutbound) Init() {
	out.email = out.Cfg.GetString("email.user")
	out.addr = fmt.Sprintf("%s:%d", out.Cfg.GetString("email.host"), out.Cfg.GetInt("email.port"))
	out.auth = smtp.CRAMMD5Auth(out.Cfg.GetString("email.user"), out.Cfg.GetString("email.password"))
}

func (out *EmailOutbound) Send(to []string, subject string, body string) error {
	headers := []string{
		fmt.Sprintf("From: %s", out.email),
		fmt.Sprintf("To: %s", strings.Join(to, ",")),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
	}

	message := []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + body)

	return smtp.SendMail(out.addr, out.auth, out.email, to, message)
}
