package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionTimeLayout is the fixed-width pattern providers use for
// transaction_time (YYYYMMDDHHMMSS).
const TransactionTimeLayout = "20060102150405"

// RawTransaction is an immutable source row as appended by the webhook
// receivers. All provider fields arrive as strings; parsing happens at
// aggregation time so a malformed row never blocks ingestion.
type RawTransaction struct {
	TransactionType         string `json:"transaction_type"`
	TransactionID           string `json:"transaction_id"`
	TransactionTime         string `json:"transaction_time"`
	TransactionAmount       string `json:"transaction_amount"`
	BusinessShortCode       string `json:"business_short_code"`
	BillRefNumber           string `json:"bill_ref_number"`
	InvoiceNumber           string `json:"invoice_number"`
	OrgAccountBalance       string `json:"org_account_balance"`
	ThirdPartyTransactionID string `json:"third_party_transaction_id"`
	MSISDN                  string `json:"msisdn"`
	FirstName               string `json:"first_name"`
	MiddleName              string `json:"middle_name"`
	LastName                string `json:"last_name"`
}

// Time parses the transaction_time field. The layout is strict: anything
// that is not exactly 14 digits fails.
func (t RawTransaction) Time() (time.Time, error) {
	ts, err := time.Parse(TransactionTimeLayout, t.TransactionTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse transaction_time %q: %w", t.TransactionTime, err)
	}
	return ts, nil
}

// Amount parses the transaction_amount field as a decimal.
func (t RawTransaction) Amount() (decimal.Decimal, error) {
	amt, err := decimal.NewFromString(t.TransactionAmount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse transaction_amount %q: %w", t.TransactionAmount, err)
	}
	return amt, nil
}
