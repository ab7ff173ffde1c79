package ar

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// RecordKind names the record set a schema failure belongs to.
type RecordKind string

const (
	KindInvoice RecordKind = "invoice"
	KindPayment RecordKind = "payment"
)

// SchemaError reports a record that does not satisfy the input schema.
type SchemaError struct {
	Kind   RecordKind
	Index  int
	ID     string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("ar: %s %q (row %d): field %s %s", e.Kind, e.ID, e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("ar: %s row %d: field %s %s", e.Kind, e.Index, e.Field, e.Reason)
}

var recordValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateRecords checks required fields and key uniqueness. The first
// violation is returned as a *SchemaError.
func ValidateRecords(invoices []Invoice, payments []Payment) error {
	seen := make(map[string]struct{}, len(invoices))
	for i, inv := range invoices {
		if err := validateStruct(KindInvoice, i, inv.ID, inv); err != nil {
			return err
		}
		if _, dup := seen[inv.ID]; dup {
			return &SchemaError{Kind: KindInvoice, Index: i, ID: inv.ID, Field: "ID", Reason: "is duplicated"}
		}
		seen[inv.ID] = struct{}{}
	}

	seen = make(map[string]struct{}, len(payments))
	for i, pay := range payments {
		if err := validateStruct(KindPayment, i, pay.ID, pay); err != nil {
			return err
		}
		if _, dup := seen[pay.ID]; dup {
			return &SchemaError{Kind: KindPayment, Index: i, ID: pay.ID, Field: "ID", Reason: "is duplicated"}
		}
		seen[pay.ID] = struct{}{}
	}
	return nil
}

func validateStruct(kind RecordKind, index int, id string, record any) error {
	err := recordValidator.Struct(record)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return &SchemaError{Kind: kind, Index: index, ID: id, Field: fieldErrs[0].Field(), Reason: "is " + fieldErrs[0].Tag()}
	}
	return fmt.Errorf("ar: validate %s row %d: %w", kind, index, err)
}
