package models

// Product is one sellable item. Stock is mutated only by a successful
// dispense or an administrative override.
type Product struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Price int64  `yaml:"price" json:"price"`
	Stock int    `yaml:"stock" json:"stock"`
}
