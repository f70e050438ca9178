package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a booked financial transaction. It carries two
// independent category references: the category the user selected and the
// corresponding (offsetting) category on the other side of the entry.
type Transaction struct {
	Base
	CompanyID        string          `gorm:"type:uuid;not null;index" json:"company_id"`
	Date             time.Time       `gorm:"not null" json:"date"`
	Amount           decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Memo             string          `json:"memo"`
	PayeeID          *string         `gorm:"type:uuid" json:"payee_id,omitempty"`
	CategoryID       *string         `gorm:"type:uuid;index" json:"category_id,omitempty"`
	OffsetCategoryID *string         `gorm:"type:uuid;index" json:"offset_category_id,omitempty"`

	// Relationships
	Payee          *Payee    `gorm:"foreignKey:PayeeID" json:"payee,omitempty"`
	Category       *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	OffsetCategory *Category `gorm:"foreignKey:OffsetCategoryID" json:"offset_category,omitempty"`
}

// ImportedTransaction is a bank feed row staged for categorization. It may
// already carry a suggested category reference before it is booked.
type ImportedTransaction struct {
	Base
	CompanyID  string          `gorm:"type:uuid;not null;index" json:"company_id"`
	Date       time.Time       `gorm:"not null" json:"date"`
	Amount     decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Descriptor string          `json:"descriptor"`
	CategoryID *string         `gorm:"type:uuid;index" json:"category_id,omitempty"`
}
