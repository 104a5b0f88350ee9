package booking

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/chatbook/platform/services/booking-service/internal/apperr"
	"github.com/chatbook/platform/services/booking-service/internal/model"
)

type CustomerInput struct {
	BusinessID string
	Email      string
	Name       string
	Phone      string
}

// FindOrCreateCustomer resolves the customer by case-insensitive email within
// the business, creating it on first contact. The name defaults to the local
// part of the email. created reports whether a new row was inserted.
func (s *Service) FindOrCreateCustomer(ctx context.Context, in CustomerInput) (c model.Customer, created bool, err error) {
	ctx, span := s.startSpan(ctx, "FindOrCreateCustomer")
	span.SetAttributes(attribute.String("business_id", in.BusinessID))
	defer func() { endSpan(span, err) }()

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return model.Customer{}, false, apperr.Validationf("invalid email %q", in.Email)
	}
	if _, err := s.business(ctx, in.BusinessID); err != nil {
		return model.Customer{}, false, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = email[:strings.IndexByte(email, '@')]
	}

	c, created, err = s.customers.UpsertCustomer(ctx, model.Customer{
		BusinessID: in.BusinessID,
		Email:      email,
		Name:       name,
		Phone:      strings.TrimSpace(in.Phone),
	})
	if err != nil {
		return model.Customer{}, false, err
	}
	if created {
		s.logger.Info("customer created", "business_id", in.BusinessID, "customer_id", c.ID)
	}
	return c, created, nil
}
