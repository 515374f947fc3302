// Package catalog holds the shop items the bot sells. Inventories in the blob
// store only carry item IDs; this is where they get names and prices.
package catalog

import "sort"

type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	Known       bool   `json:"known"`
}

const UnknownItemName = "Unknown Item"

var items = map[string]Item{
	"xp_boost_1h":     {Name: "XP Boost (1h)", Description: "Double XP for one hour", Category: "boost", Price: 500},
	"xp_boost_24h":    {Name: "XP Boost (24h)", Description: "Double XP for a day", Category: "boost", Price: 5000},
	"coin_boost_1h":   {Name: "Coin Boost (1h)", Description: "Double coins for one hour", Category: "boost", Price: 750},
	"custom_role":     {Name: "Custom Role", Description: "A personal role with your own color", Category: "cosmetic", Price: 25000},
	"role_color":      {Name: "Role Color", Description: "Change the color of your custom role", Category: "cosmetic", Price: 2500},
	"profile_banner":  {Name: "Profile Banner", Description: "Banner shown on your dashboard profile", Category: "cosmetic", Price: 4000},
	"vip_badge":       {Name: "VIP Badge", Description: "VIP badge on your profile", Category: "cosmetic", Price: 10000},
	"duel_shield":     {Name: "Duel Shield", Description: "Protects your ELO from one lost duel", Category: "duel", Price: 3000},
	"elo_insurance":   {Name: "ELO Insurance", Description: "Halves the ELO lost in your next three duels", Category: "duel", Price: 6000},
	"warning_shield":  {Name: "Warning Shield", Description: "Removes one warning point after review", Category: "utility", Price: 15000},
	"raid_priority":   {Name: "Raid Priority", Description: "Priority slot in the next raid signup", Category: "utility", Price: 2000},
	"training_pass":   {Name: "Training Pass", Description: "Counts one missed training as attended", Category: "utility", Price: 1500},
	"mystery_box":     {Name: "Mystery Box", Description: "A random reward", Category: "lootbox", Price: 1000},
	"legendary_crate": {Name: "Legendary Crate", Description: "A random rare reward", Category: "lootbox", Price: 12000},
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (Item, bool) {
	item, ok := items[id]
	if !ok {
		return Item{}, false
	}
	item.ID = id
	item.Known = true
	return item, true
}

// Resolve maps inventory item IDs onto catalog entries, keeping order and
// duplicates. IDs that are not in the catalog become an "Unknown Item" entry
// so the inventory never shrinks.
func Resolve(ids []string) []Item {
	resolved := make([]Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := Lookup(id); ok {
			resolved = append(resolved, item)
			continue
		}
		resolved = append(resolved, Item{ID: id, Name: UnknownItemName, Category: "unknown"})
	}
	return resolved
}

// All returns the whole catalog ordered by price, then ID.
func All() []Item {
	all := make([]Item, 0, len(items))
	for id := range items {
		item, _ := Lookup(id)
		all = append(all, item)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Price != all[j].Price {
			return all[i].Price < all[j].Price
		}
		return all[i].ID < all[j].ID
	})
	return all
}
