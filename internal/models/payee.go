package models

// Payee is a counterparty on transactions. Payee names are unique per
// company (case-insensitive); payees have no hierarchy.
type Payee struct {
	Base
	CompanyID string `gorm:"type:uuid;not null;index" json:"company_id"`
	Name      string `gorm:"not null" json:"name"`

	// Relationships
	Transactions []Transaction `gorm:"foreignKey:PayeeID" json:"transactions,omitempty"`
}
