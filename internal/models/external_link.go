package models

// ExternalAccountLink ties a category to an external financial account
// (e.g. a connected bank account). A linked category is protected: it may
// not be deleted, and renames are mirrored to the link's display name.
type ExternalAccountLink struct {
	Base
	CompanyID   string `gorm:"type:uuid;not null;index" json:"company_id"`
	DisplayName string `gorm:"not null" json:"display_name"`
	Provider    string `json:"provider"`
}
