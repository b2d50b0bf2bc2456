package briefcase

import (
	"fmt"
	"strings"
)

// itemLines renders a flat batch of items as bulleted lines.
func itemLines(items []*Item) string {
	var sb strings.Builder
	for _, item := range items {
		fmt.Fprintf(&sb, "• %s\n", item.DisplayName())
	}
	return strings.TrimRight(sb.String(), "\n")
}

// groupedLines renders an inventory rolled up by key, one numbered row per key.
func groupedLines(inv *Inventory) string {
	var sb strings.Builder
	for idx, row := range inv.Grouped() {
		fmt.Fprintf(&sb, "%d. %s", idx+1, row.Item.DisplayName())
		if row.Amount > 1 {
			fmt.Fprintf(&sb, " ×%d", row.Amount)
		}
		fmt.Fprintf(&sb, " [%s]\n", row.Item.Key)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// inventoryHeader renders the owner line above a listing.
func inventoryHeader(cfg *InventoryConfig, ownerName string, used int) string {
	icon := cfg.InventoryIcon
	if icon == "" {
		icon = "🧰"
	}
	line := fmt.Sprintf("%s %s's %s (%d", icon, ownerName, cfg.InventoryName, used)
	if cfg.Limit > 0 {
		line += fmt.Sprintf("/%d", cfg.Limit)
	}
	return line + " items)"
}

// plural appends "s" for counts other than one.
func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
