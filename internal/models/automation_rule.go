package models

// AutomationRule auto-categorizes incoming transactions whose descriptor
// matches a pattern. Rules reference their target category by name, not by
// id, so a category rename or merge must rewrite matching rules.
type AutomationRule struct {
	Base
	CompanyID    string `gorm:"type:uuid;not null;index" json:"company_id"`
	Name         string `gorm:"not null" json:"name"`
	MatchPattern string `gorm:"not null" json:"match_pattern"`
	CategoryName string `gorm:"not null" json:"category_name"`
}
