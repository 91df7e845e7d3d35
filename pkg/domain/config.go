package domain

import (
	"sort"
	"time"
)

// PublicMembershipKey is the id of the always-present order-0 access tier.
const PublicMembershipKey = "public"

// MembershipKeyDefinition is an ordered access tier. Keys form a total order;
// a member holding the key at order N inherits every key with order <= N.
type MembershipKeyDefinition struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RequiresAuth bool   `json:"requires_auth"`
	Order        int    `json:"order"`
}

// AppConfig is the process-wide platform configuration: the membership key
// catalog plus the legacy tier mapping.
type AppConfig struct {
	MembershipKeys []MembershipKeyDefinition `json:"membership_keys"`
	// TierKeys maps legacy organization tiers to membership key ids.
	TierKeys  map[string]string `json:"tier_keys,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// KeyByID returns the membership key definition with the given id.
func (c AppConfig) KeyByID(id string) (MembershipKeyDefinition, bool) {
	for _, k := range c.MembershipKeys {
		if k.ID == id {
			return k, true
		}
	}
	return MembershipKeyDefinition{}, false
}

// SortedKeys returns the catalog ordered by key order.
func (c AppConfig) SortedKeys() []MembershipKeyDefinition {
	out := make([]MembershipKeyDefinition, len(c.MembershipKeys))
	copy(out, c.MembershipKeys)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// GrantedKeys returns every key id with order <= the order of the given key.
// Unknown keys grant only the public tier.
func (c AppConfig) GrantedKeys(keyID string) []string {
	max, ok := c.KeyByID(keyID)
	if !ok {
		return []string{PublicMembershipKey}
	}
	var out []string
	for _, k := range c.SortedKeys() {
		if k.Order <= max.Order {
			out = append(out, k.ID)
		}
	}
	return out
}

// KeyForTier resolves a legacy organization tier to a membership key id,
// falling back to the public key.
func (c AppConfig) KeyForTier(tier string) string {
	if id, ok := c.TierKeys[tier]; ok {
		return id
	}
	return PublicMembershipKey
}
