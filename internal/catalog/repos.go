// Package catalog to warstwa dostępu do katalogu docelowego. Importer nie
// gada z GORM-em bezpośrednio – każda encja ma swoje repozytorium z jawnym
// kontraktem "nie znaleziono → ErrNotFound, nie przerywaj batcha".
package catalog

import (
	"errors"

	"github.com/bartek5186/onec2www/internal/db"
)

// ErrNotFound zwracane przez lookupy; wołający decyduje czy to skip czy błąd.
var ErrNotFound = errors.New("catalog: not found")

type Products interface {
	ByExternalID(extID string) (*db.Product, error)
	ByParentExternalID(parentID string) (*db.Product, error)
	Create(p *db.Product) error
	Save(p *db.Product) error
	SlugTaken(slug string) (bool, error)
	// SetExternalID dopisuje brakujący external_id na placeholderze
	// (backfill przy lookupie po parent id).
	SetExternalID(id uint, extID string) error
}

type Categories interface {
	ByExternalID(extID string) (*db.Category, error)
	ByID(id uint) (*db.Category, error)
	Upsert(extID, name string) (*db.Category, error)
	SetParent(id uint, parentID *uint) error
	// Uncategorized zwraca (tworząc przy pierwszym użyciu) kubeł na towary
	// bez grupy.
	Uncategorized() (*db.Category, error)
}

type Brands interface {
	GetOrCreate(name string) (*db.Brand, error)
}

type PriceTypes interface {
	Upsert(extID, name, field string) (*db.PriceType, error)
	ByExternalID(extID string) (*db.PriceType, error)
}

type Attributes interface {
	// ValueByGUID szuka wartości cechy po GUID-zie 1C. Celowo bez filtra
	// po Active – nieaktywne cechy też się linkują.
	ValueByGUID(guid string) (*db.AttributeValue, error)
	LinkProduct(productID, valueID uint) error
}

type ImportSessions interface {
	Create(kind string) (*db.ImportSession, error)
	// Claim zwraca sesję in_progress jeśli jakaś żyje (idempotentny trigger)
	// albo tworzy nową i od razu oznacza started. Całość w krótkiej
	// transakcji z blokadą wiersza.
	Claim(kind string) (sess *db.ImportSession, alreadyRunning bool, err error)
	// ReapStale ubija sesje nieterminalne starsze niż maxAge, zwraca ile.
	ReapStale(maxAgeMin int) (int64, error)
	MarkInProgress(id uint) error
	MarkCompleted(id uint) error
	MarkFailed(id uint, reason string) error
	AppendReport(id uint, line string) error
	SaveStats(s *db.ImportSession) error
	ByID(id uint) (*db.ImportSession, error)
}

// Store spina wszystkie repozytoria – wygodne do wstrzykiwania.
type Store struct {
	Products       Products
	Categories     Categories
	Brands         Brands
	PriceTypes     PriceTypes
	Attributes     Attributes
	ImportSessions ImportSessions
}
