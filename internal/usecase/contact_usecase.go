package usecase

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/validator"
)

type ContactInput struct {
	Name    string
	Email   string
	Phone   string
	Message string
}

type ContactUsecase struct {
	mailer     Mailer
	storeEmail string
}

func NewContactUsecase(mailer Mailer, storeEmail string) *ContactUsecase {
	return &ContactUsecase{mailer: mailer, storeEmail: storeEmail}
}

// お店宛てと送信者宛て（受付確認）の2通を送る
func (u *ContactUsecase) Send(ctx context.Context, in ContactInput) error {
	name := strings.TrimSpace(in.Name)
	email := validator.NormalizeEmail(in.Email)
	message := strings.TrimSpace(in.Message)
	if name == "" || email == "" || message == "" {
		return validationError("name, email and message are required")
	}
	if !validator.IsEmailLike(email) {
		return validationError("invalid email")
	}
	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		phone = "-"
	}

	store := Mail{
		To:      []string{u.storeEmail},
		ReplyTo: email,
		Subject: "New contact message from " + name,
		Body:    fmt.Sprintf("Name: %s\nEmail: %s\nPhone: %s\n\n%s\n", name, email, phone, message),
	}
	if err := u.mailer.Send(ctx, store); err != nil {
		return internal(fmt.Errorf("send store mail: %w", err))
	}

	confirm := Mail{
		To:      []string{email},
		Subject: "We received your message",
		Body: fmt.Sprintf("Hello %s,\n\nThank you for contacting us. We will get back to you soon.\n\nYour message:\n%s\n",
			name, message),
	}
	if err := u.mailer.Send(ctx, confirm); err != nil {
		return internal(fmt.Errorf("send confirmation mail: %w", err))
	}
	return nil
}
