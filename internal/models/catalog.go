package models

// ServiceCatalogEntry describes one repair service offered on the platform.
// The catalog is loaded from configs/services.yaml at startup.
type ServiceCatalogEntry struct {
	Type      ServiceType `yaml:"type" json:"type"`
	Title     string      `yaml:"title" json:"title"`
	BasePrice int         `yaml:"base_price" json:"base_price"`
	Active    bool        `yaml:"active" json:"active"`
	SortOrder int         `yaml:"sort_order" json:"sort_order"`
}
