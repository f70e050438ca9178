package models

import "github.com/shopspring/decimal"

// EntrySide is the debit/credit side of a journal line.
type EntrySide string

const (
	EntrySideDebit  EntrySide = "debit"
	EntrySideCredit EntrySide = "credit"
)

// LedgerEntry is one journal line posted against a category.
type LedgerEntry struct {
	Base
	CompanyID     string          `gorm:"type:uuid;not null;index" json:"company_id"`
	TransactionID string          `gorm:"type:uuid;not null" json:"transaction_id"`
	CategoryID    string          `gorm:"type:uuid;not null;index" json:"category_id"`
	Side          EntrySide       `gorm:"not null" json:"side"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`

	// Relationships
	Transaction *Transaction `gorm:"foreignKey:TransactionID" json:"transaction,omitempty"`
	Category    *Category    `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}
