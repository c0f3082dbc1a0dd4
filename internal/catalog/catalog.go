// Package catalog prices menu items at settlement time. Orders keep a copy of
// what it returns and never read the catalog again.
package catalog

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-ordering/internal/models"
)

// Item is a menu item with the modifiers that may be selected on it.
type Item struct {
	models.MenuItem
	Modifiers map[string]models.MenuModifier
}

// Provider looks up current prices and availability.
type Provider interface {
	// GetItems returns the requested items of an organization keyed by id.
	// Missing ids are simply absent from the result.
	GetItems(ctx context.Context, organizationID string, itemIDs []string) (map[string]Item, error)
}

// TxProvider is a Provider that can join a caller's transaction.
type TxProvider interface {
	Provider
	WithTx(tx bun.Tx) Provider
}

// DB reads the catalog tables.
type DB struct {
	Bun bun.IDB
}

// WithTx → a copy of the catalog reader bound to tx
func (d *DB) WithTx(tx bun.Tx) Provider {
	return &DB{Bun: tx}
}

func (d *DB) GetItems(ctx context.Context, organizationID string, itemIDs []string) (map[string]Item, error) {
	result := make(map[string]Item, len(itemIDs))
	if len(itemIDs) == 0 {
		return result, nil
	}

	var items []models.MenuItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("mi.organization_id = ?", organizationID).
		Where("mi.id IN (?)", bun.In(itemIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu items: %w", err)
	}
	if len(items) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		result[it.ID] = Item{MenuItem: it, Modifiers: map[string]models.MenuModifier{}}
		ids = append(ids, it.ID)
	}

	var modifiers []models.MenuModifier
	err = d.Bun.NewSelect().
		Model(&modifiers).
		Where("mm.menu_item_id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu modifiers: %w", err)
	}
	for _, m := range modifiers {
		result[m.MenuItemID].Modifiers[m.ID] = m
	}

	return result, nil
}
