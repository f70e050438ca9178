package models

import "strings"

// AccountType classifies a category in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeCOGS      AccountType = "cogs"
	AccountTypeExpense   AccountType = "expense"
)

// AccountTypes lists every valid account type in display order.
var AccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeRevenue,
	AccountTypeCOGS,
	AccountTypeExpense,
}

// ParseAccountType resolves a case-insensitive type string.
// Returns false if the string is not one of the known types.
func ParseAccountType(s string) (AccountType, bool) {
	t := AccountType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AccountTypes {
		if t == known {
			return known, true
		}
	}
	return "", false
}

// Category is one entry in a company's chart of accounts. Categories form a
// shallow hierarchy: a root category may have direct children, and a child
// must carry the same account type as its parent.
type Category struct {
	Base
	CompanyID      string      `gorm:"type:uuid;not null;index" json:"company_id"`
	Name           string      `gorm:"not null" json:"name"`
	Type           AccountType `gorm:"not null" json:"type"`
	Subtype        string      `json:"subtype,omitempty"`
	ParentID       *string     `gorm:"type:uuid" json:"parent_id,omitempty"`
	ExternalLinkID *string     `gorm:"type:uuid" json:"external_link_id,omitempty"`

	// Relationships
	Parent       *Category            `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	Children     []Category           `gorm:"foreignKey:ParentID" json:"children,omitempty"`
	ExternalLink *ExternalAccountLink `gorm:"foreignKey:ExternalLinkID" json:"external_link,omitempty"`
}

// IsRoot reports whether the category has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// Protected reports whether the category is linked to an external financial
// account and therefore may not be deleted.
func (c *Category) Protected() bool {
	return c.ExternalLinkID != nil
}
