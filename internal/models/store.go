package models

import "time"

// Store is a single Shopify installation (one tenant), keyed by shop
// domain. Created when the merchant completes the OAuth install; read on
// every tenant-scoped request to resolve domain to credentials.
type Store struct {
	ShopDomain   string    `json:"shop_domain"`
	AccessToken  string    `json:"-"`
	Plan         PlanTier  `json:"plan"`
	Installed    bool      `json:"installed"`
	InstalledAt  time.Time `json:"installed_at"`
	LastAccessAt time.Time `json:"last_access_at"`
}

// InstallStoreRequest is the post-OAuth install payload: the domain and
// the Admin API access token issued for it.
type InstallStoreRequest struct {
	ShopDomain  string   `json:"shop_domain"`
	AccessToken string   `json:"access_token"`
	Plan        PlanTier `json:"plan"`
}
