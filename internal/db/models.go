// internal/db/models.go
package db

import "time"

// Statusy ImportSession. Przejścia tylko do przodu, wyjątek: failed
// osiągalny z każdego stanu nieterminalnego.
const (
	ImportPending    = "pending"
	ImportStarted    = "started"
	ImportInProgress = "in_progress"
	ImportCompleted  = "completed"
	ImportFailed     = "failed"
)

// Rodzaje importu.
const (
	KindCatalog   = "catalog"
	KindImages    = "images"
	KindPrices    = "prices"
	KindStock     = "stock"
	KindCustomers = "customers"
)

// import_sessions – jeden wiersz na jeden przebieg importu. Nigdy nie
// kasowane automatycznie, zostają jako ślad audytowy.
type ImportSession struct {
	ID         uint   `gorm:"primaryKey"`
	Kind       string `gorm:"index"`
	Status     string `gorm:"index"`
	Report     string `gorm:"type:text"`
	LastError  string `gorm:"type:text"`
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`

	// liczniki przebiegu
	Created          int
	Updated          int
	Skipped          int
	Errors           int
	AttributesLinked int
	AttributesSkip   int
	CyclesRejected   int
}

// products – katalog docelowy. Faza 1 (goods) tworzy placeholder po
// parent_external_id, faza 2 (offers) nadaje finalny external_id i aktywuje.
type Product struct {
	ID               uint    `gorm:"primaryKey"`
	ExternalID       string  `gorm:"uniqueIndex"`
	ParentExternalID string  `gorm:"index"`
	Name             string
	Slug             string `gorm:"uniqueIndex"`
	SKU              string `gorm:"index"`
	Active           bool   `gorm:"index"`
	Pending          bool
	ImagePath        string
	SpecsJSON        string `gorm:"type:text"` // charakterystyki z ofert, klucz→wartość

	// pola cenowe mapowane przez price_types
	RetailPrice      float64
	Wholesale1Price  float64
	Wholesale2Price  float64
	Wholesale3Price  float64
	TrainerPrice     float64
	FederationPrice  float64
	RecommendedPrice float64 // RRC
	MaxRetailPrice   float64 // MRC

	StockQuantity int

	CategoryID uint `gorm:"index"`
	BrandID    uint `gorm:"index"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// categories – drzewo grup z 1C. ParentID wiązany w drugim przebiegu,
// z odrzucaniem cykli.
type Category struct {
	ID         uint   `gorm:"primaryKey"`
	ExternalID string `gorm:"uniqueIndex"`
	Name       string
	Slug       string `gorm:"index"`
	ParentID   *uint  `gorm:"index"`
}

type Brand struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex"`
}

// Pola cenowe produktu, na które mapują się typy cen z 1C.
const (
	FieldRetail      = "retail_price"
	FieldWholesale1  = "wholesale1_price"
	FieldWholesale2  = "wholesale2_price"
	FieldWholesale3  = "wholesale3_price"
	FieldTrainer     = "trainer_price"
	FieldFederation  = "federation_price"
	FieldRecommended = "recommended_price"
	FieldMaxRetail   = "max_retail_price"
)

// price_types – słownik typów cen 1C → pole cenowe produktu.
// Odświeżany idempotentnie przy każdym imporcie.
type PriceType struct {
	ID         uint   `gorm:"primaryKey"`
	ExternalID string `gorm:"uniqueIndex"`
	Name       string
	Field      string `gorm:"index"`
}

// attributes / attribute_values – słownik cech z mapowaniem GUID-ów 1C.
// Linkowanie NIE filtruje po Active – nieaktywna cecha też się podpina.
type Attribute struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"index"`
	External1C string `gorm:"column:external_1c;uniqueIndex"`
	Active     bool
}

type AttributeValue struct {
	ID          uint `gorm:"primaryKey"`
	AttributeID uint `gorm:"index"`
	Value       string
	External1C  string `gorm:"column:external_1c;uniqueIndex"`
	Active      bool
}

// product_attribute_values – powiązania produkt↔wartość cechy budowane
// podczas importu goods.
type ProductAttributeValue struct {
	ID               uint `gorm:"primaryKey"`
	ProductID        uint `gorm:"index;uniqueIndex:uniq_prod_attr_val"`
	AttributeValueID uint `gorm:"index;uniqueIndex:uniq_prod_attr_val"`
}
