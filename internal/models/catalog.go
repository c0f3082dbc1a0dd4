package models

import "github.com/uptrace/bun"

// MenuItem is read from the catalog at settlement time and never referenced afterwards.
type MenuItem struct {
	bun.BaseModel `bun:"table:menu_items,alias:mi"`

	ID             string `bun:"id,pk" json:"id"`
	OrganizationID string `bun:"organization_id,notnull" json:"organization_id"`
	CategoryID     string `bun:"category_id,nullzero" json:"category_id,omitempty"`
	Name           string `bun:"name,notnull" json:"name"`
	Price          int64  `bun:"price,notnull" json:"price"`
	Available      bool   `bun:"available,notnull" json:"available"`
}

type MenuModifier struct {
	bun.BaseModel `bun:"table:menu_modifiers,alias:mm"`

	ID         string `bun:"id,pk" json:"id"`
	MenuItemID string `bun:"menu_item_id,notnull" json:"menu_item_id"`
	Name       string `bun:"name,notnull" json:"name"`
	Price      int64  `bun:"price,notnull" json:"price"`
	Available  bool   `bun:"available,notnull" json:"available"`
}
