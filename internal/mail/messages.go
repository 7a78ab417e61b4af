package mail

import (
	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/classmeet/internal/render"
)

// SendReconnectCalendar asks a user whose calendar credential was dropped to
// authorize again.
func SendReconnectCalendar(sender MailSender, toEmail string, reconnectURL string) error {
	body, err := render.RenderHTML("mail/reconnect-calendar", fiber.Map{
		"reconnectURL": reconnectURL,
	})
	if err != nil {
		return err
	}
	return sender.Send(&Message{
		To:      []string{toEmail},
		Subject: "Please reconnect your calendar account",
		Body:    body,
		IsHTML:  true,
	})
}
