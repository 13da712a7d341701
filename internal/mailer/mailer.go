package mailer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/taskdeck/apiserver/config"
)

// Mailer sends account lifecycle emails through SendGrid.
type Mailer struct {
	apiKey string
	from   *sgmail.Email
}

// New constructs a Mailer from config.
func New(cfg config.SendGridConfig) (*Mailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, errors.New("sendgrid sender email is required")
	}
	return &Mailer{
		apiKey: cfg.APIKey,
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
	}, nil
}

// SendWelcome greets a freshly registered user.
func (m *Mailer) SendWelcome(email, name string) error {
	subject := "Thanks for joining us!"
	body := fmt.Sprintf("Welcome to the app, %s! Let me know how you like the app!", name)
	return m.send(email, name, subject, body)
}

// SendGoodbye is sent after an account is deleted.
func (m *Mailer) SendGoodbye(email, name string) error {
	subject := fmt.Sprintf("We are sad to see you leave, %s", name)
	body := fmt.Sprintf(
		"Hey, %s, too bad you are leaving! If you don't mind, please let us know why you've deleted your account!",
		name,
	)
	return m.send(email, name, subject, body)
}

func (m *Mailer) send(email, name, subject, body string) error {
	to := sgmail.NewEmail(name, email)
	message := sgmail.NewSingleEmail(m.from, subject, to, body, body)

	response, err := sendgrid.NewSendClient(m.apiKey).Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid rejected message: status %d", response.StatusCode)
	}
	return nil
}
