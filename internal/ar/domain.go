package ar

import (
	"time"

	"github.com/shopspring/decimal"
)

// Revenue splits an invoice total across the three revenue categories.
type Revenue struct {
	Machine decimal.Decimal `json:"machine"`
	Parts   decimal.Decimal `json:"parts"`
	Service decimal.Decimal `json:"service"`
}

// Sum returns Machine + Parts + Service.
func (r Revenue) Sum() decimal.Decimal {
	return r.Machine.Add(r.Parts).Add(r.Service)
}

// Invoice is an immutable receivable record.
type Invoice struct {
	ID           string          `json:"id" validate:"required"`
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name" validate:"required"`
	CompanyName  string          `json:"company_name" validate:"required"`
	Branch       string          `json:"branch" validate:"required"`
	InvoiceDate  time.Time       `json:"invoice_date" validate:"required"`
	DueDate      time.Time       `json:"due_date"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Revenue      Revenue         `json:"revenue"`
}

// Payment is an immutable receipt recorded against an invoice. InvoiceID may
// reference an invoice that does not exist.
type Payment struct {
	ID          string          `json:"id" validate:"required"`
	InvoiceID   string          `json:"invoice_id" validate:"required"`
	PaymentDate time.Time       `json:"payment_date" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
}

// DateOf truncates t to its calendar date at midnight UTC. Zero stays zero.
func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a calendar date at midnight UTC.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
