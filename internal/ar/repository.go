package ar

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/receivables/internal/platform/db"
)

// Repository reads invoices and payments from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const listInvoicesSQL = `
		SELECT invoice_id, customer_id, customer_name, company_name, branch,
			invoice_date, due_date, total_amount,
			machine_revenue, parts_revenue, service_revenue
		FROM ar_invoices
		ORDER BY invoice_date, invoice_id`

const listPaymentsSQL = `
		SELECT payment_id, invoice_id, payment_date, payment_amount
		FROM ar_payments
		ORDER BY payment_date, payment_id`

// LoadRecords reads both tables inside one repeatable-read transaction so the
// two sets describe the same point in time.
func (r *Repository) LoadRecords(ctx context.Context) ([]Invoice, []Payment, error) {
	var (
		invoices []Invoice
		payments []Payment
	)
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		if invoices, err = listInvoices(ctx, tx); err != nil {
			return err
		}
		payments, err = listPayments(ctx, tx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return invoices, payments, nil
}

// invoiceRow holds one scanned ar_invoices row. Text columns are nullable so a
// NULL reaches ValidateRecords as an empty field instead of failing the scan.
type invoiceRow struct {
	id, customerID, customerName, companyName, branch pgtype.Text
	invoiceDate, dueDate                              pgtype.Date
	total, machine, parts, service                    pgtype.Numeric
}

func (r *invoiceRow) targets() []any {
	return []any{
		&r.id, &r.customerID, &r.customerName, &r.companyName, &r.branch,
		&r.invoiceDate, &r.dueDate,
		&r.total, &r.machine, &r.parts, &r.service,
	}
}

func (r invoiceRow) invoice(index int) (Invoice, error) {
	inv := Invoice{
		ID:           r.id.String,
		CustomerID:   r.customerID.String,
		CustomerName: r.customerName.String,
		CompanyName:  r.companyName.String,
		Branch:       r.branch.String,
	}
	if r.invoiceDate.Valid {
		inv.InvoiceDate = DateOf(r.invoiceDate.Time)
	}
	if r.dueDate.Valid {
		inv.DueDate = DateOf(r.dueDate.Time)
	}
	amounts := []struct {
		field string
		src   pgtype.Numeric
		dst   *decimal.Decimal
	}{
		{"TotalAmount", r.total, &inv.TotalAmount},
		{"Machine", r.machine, &inv.Revenue.Machine},
		{"Parts", r.parts, &inv.Revenue.Parts},
		{"Service", r.service, &inv.Revenue.Service},
	}
	for _, a := range amounts {
		value, err := numericToDecimal(a.src)
		if err != nil {
			return Invoice{}, &SchemaError{Kind: KindInvoice, Index: index, ID: inv.ID, Field: a.field, Reason: err.Error()}
		}
		*a.dst = value
	}
	return inv, nil
}

type paymentRow struct {
	id, invoiceID pgtype.Text
	paymentDate   pgtype.Date
	amount        pgtype.Numeric
}

func (r *paymentRow) targets() []any {
	return []any{&r.id, &r.invoiceID, &r.paymentDate, &r.amount}
}

func (r paymentRow) payment(index int) (Payment, error) {
	pay := Payment{ID: r.id.String, InvoiceID: r.invoiceID.String}
	if r.paymentDate.Valid {
		pay.PaymentDate = DateOf(r.paymentDate.Time)
	}
	value, err := numericToDecimal(r.amount)
	if err != nil {
		return Payment{}, &SchemaError{Kind: KindPayment, Index: index, ID: pay.ID, Field: "Amount", Reason: err.Error()}
	}
	pay.Amount = value
	return pay, nil
}

func listInvoices(ctx context.Context, tx pgx.Tx) ([]Invoice, error) {
	rows, err := tx.Query(ctx, listInvoicesSQL)
	if err != nil {
		return nil, fmt.Errorf("ar: query invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		var row invoiceRow
		if err := rows.Scan(row.targets()...); err != nil {
			return nil, fmt.Errorf("ar: scan invoice: %w", err)
		}
		inv, err := row.invoice(len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ar: iterate invoices: %w", err)
	}
	return out, nil
}

func listPayments(ctx context.Context, tx pgx.Tx) ([]Payment, error) {
	rows, err := tx.Query(ctx, listPaymentsSQL)
	if err != nil {
		return nil, fmt.Errorf("ar: query payments: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var row paymentRow
		if err := rows.Scan(row.targets()...); err != nil {
			return nil, fmt.Errorf("ar: scan payment: %w", err)
		}
		pay, err := row.payment(len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, pay)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ar: iterate payments: %w", err)
	}
	return out, nil
}

func numericToDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	switch {
	case !n.Valid:
		return decimal.Zero, errors.New("is required")
	case n.NaN || n.InfinityModifier != pgtype.Finite:
		return decimal.Zero, errors.New("is not a finite number")
	case n.Int == nil:
		return decimal.Zero, nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}
