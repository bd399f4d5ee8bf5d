package orders

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrCreationFailed = errors.New("order creation failed")
	ErrStorage        = errors.New("storage failure")
)

// LineError reports which requested line failed during materialization.
type LineError struct {
	Line    int
	Product primitive.ObjectID
	Err     error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("order line %d (product %s): %v", e.Line, e.Product.Hex(), e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
