package action

import (
	"context"
	"encoding/json"

	"github.com/ErlanBelekov/triggerd/internal/email"
)

type EmailPayload struct {
	To      []string `json:"to" validate:"required,min=1,dive,email"`
	Subject string   `json:"subject" validate:"required"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

type Email struct {
	sender email.Sender
}

func NewEmail(sender email.Sender) *Email {
	return &Email{sender: sender}
}

func (e *Email) Execute(ctx context.Context, raw json.RawMessage) Outcome {
	var p EmailPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Failure("decode email payload: %v", err)
	}
	if err := validate.Struct(p); err != nil {
		return Failure("invalid email payload: %v", err)
	}

	msg := email.Message{To: p.To, Subject: p.Subject, HTML: p.HTML, Text: p.Text}
	if f, ok := FiringFromContext(ctx); ok {
		msg.IdempotencyKey = f.Key()
	}
	if err := e.sender.Send(ctx, msg); err != nil {
		return RetrySoon("%v", err)
	}
	return Success()
}
