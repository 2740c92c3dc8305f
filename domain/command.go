package domain

import (
	"fmt"

	"courier/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// SendMessageCommand carries one outgoing message request.
// Content length is bounded to keep single Badger values small.
type SendMessageCommand struct {
	SenderID   string `validate:"required"`
	ReceiverID string `validate:"required"`
	Content    string `validate:"required,max=4000"`
}

func (c SendMessageCommand) Validate() error {
	if c.SenderID == c.ReceiverID {
		return errors.ErrSelfMessage
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrEmptyContent, err)
	}
	return nil
}
