// Package commerceml parsuje dialekty XML eksportu 1C (CommerceML):
// towary, oferty, ceny, stany, słownik typów cen i drzewo grup.
package commerceml

// PropertyValue to para właściwość→wartość z sekcji ЗначенияСвойств;
// obie strony są GUID-ami z 1C.
type PropertyValue struct {
	PropertyID string
	ValueID    string
}

// GoodsRecord – jeden Товар z pliku import*.xml. ID to "parent external id"
// placeholdera; finalny identyfikator nadają dopiero oferty.
type GoodsRecord struct {
	ID         string
	Name       string
	Article    string
	GroupIDs   []string
	Brand      string
	Picture    string
	Properties []PropertyValue
}

// OfferRecord – Предложение z offers*.xml. ID bywa złożone: "parent#wariant".
type OfferRecord struct {
	ID              string
	Name            string
	Article         string
	Characteristics map[string]string
}

type PriceEntry struct {
	PriceTypeID string
	Value       float64
}

// PriceRecord – ceny jednego Предложения z prices*.xml.
type PriceRecord struct {
	ID     string
	Prices []PriceEntry
}

type StockEntry struct {
	WarehouseID string
	Quantity    int
}

// StockRecord – stany magazynowe z rests*.xml. Ilości w jednym przebiegu
// SUMUJĄ się po external id (kilka magazynów → jedna suma).
type StockRecord struct {
	ID      string
	Entries []StockEntry
}

// PriceTypeRecord – wpis słownika ТипыЦен.
type PriceTypeRecord struct {
	ID   string
	Name string
}

// CategoryRecord – spłaszczony węzeł drzewa grup (Классификатор/Группы).
type CategoryRecord struct {
	ID       string
	Name     string
	ParentID string
}
