// Package importer realizuje wieloetapowy merge katalogu z plików
// CommerceML do sklepu: towary → oferty → ceny → stany. Każdy etap
// zależy od poprzedniego, kolejność jest sztywna.
package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bartek5186/onec2www/internal/catalog"
	"github.com/bartek5186/onec2www/internal/commerceml"
	"github.com/bartek5186/onec2www/internal/db"
)

// Stats – liczniki jednego przebiegu. Kopiowane do ImportSession na końcu.
type Stats struct {
	Created          int
	Updated          int
	Skipped          int
	Errors           int
	AttributesLinked int
	AttributesSkip   int
	CyclesRejected   int
}

// Reconciler scala rekordy z parsera do katalogu. Błąd pojedynczego
// rekordu podbija licznik i leci dalej – import ma przejść przez cały
// eksport, nawet brudny.
type Reconciler struct {
	log   zerolog.Logger
	store *catalog.Store

	Stats Stats

	// deduplikacja logów o brakujących placeholderach: tysiące ofert
	// potrafi wskazywać ten sam nieistniejący towar
	missingLogged map[string]struct{}

	// bufor sumowania stanów per external id w ramach przebiegu
	stockTotals map[string]int
}

func NewReconciler(log zerolog.Logger, store *catalog.Store) *Reconciler {
	return &Reconciler{
		log:           log.With().Str("component", "reconciler").Logger(),
		store:         store,
		missingLogged: make(map[string]struct{}),
		stockTotals:   make(map[string]int),
	}
}

// --- etap 1: typy cen ---

// priceFieldRules – dopasowanie nazwy typu ceny z 1C do pola produktu.
// Reguły sprawdzane po kolei, pierwsza wygrywa; brak trafienia → detal.
var priceFieldRules = []struct {
	needle string
	field  string
}{
	{"опт 1", db.FieldWholesale1},
	{"опт 2", db.FieldWholesale2},
	{"опт 3", db.FieldWholesale3},
	{"тренер", db.FieldTrainer},
	{"федерац", db.FieldFederation},
	{"ррц", db.FieldRecommended},
	{"рекомендов", db.FieldRecommended},
	{"мрц", db.FieldMaxRetail},
	{"макс", db.FieldMaxRetail},
}

func priceFieldFor(name string) string {
	n := strings.ToLower(name)
	for _, r := range priceFieldRules {
		if strings.Contains(n, r.needle) {
			return r.field
		}
	}
	return db.FieldRetail
}

// UpsertPriceTypes odświeża słownik typów cen. Idempotentne – każdy
// import nadpisuje nazwę i mapowanie pola.
func (r *Reconciler) UpsertPriceTypes(recs []commerceml.PriceTypeRecord) {
	for _, rec := range recs {
		field := priceFieldFor(rec.Name)
		if _, err := r.store.PriceTypes.Upsert(rec.ID, rec.Name, field); err != nil {
			r.Stats.Errors++
			r.log.Error().Err(err).Str("id", rec.ID).Msg("upsert typu ceny nieudany")
			continue
		}
		r.log.Debug().Str("id", rec.ID).Str("name", rec.Name).Str("field", field).Msg("typ ceny")
	}
}

// --- etap 2: placeholdery z towarów ---

const defaultBrandName = "Nieznany"

// allZeroGUID: 1C eksportuje "puste" wartości cech jako GUID z samych zer.
func allZeroGUID(guid string) bool {
	stripped := strings.ReplaceAll(guid, "-", "")
	if stripped == "" {
		return true
	}
	return strings.Count(stripped, "0") == len(stripped)
}

// CreatePlaceholders zakłada nieaktywne produkty-szkielety z danych
// towarów. Finalny external id nadadzą dopiero oferty – tu wiążemy po
// parent external id, czyli Ид towaru.
func (r *Reconciler) CreatePlaceholders(recs []commerceml.GoodsRecord) {
	for _, g := range recs {
		if _, err := r.store.Products.ByParentExternalID(g.ID); err == nil {
			r.Stats.Skipped++
			continue
		} else if !errors.Is(err, catalog.ErrNotFound) {
			r.Stats.Errors++
			r.log.Error().Err(err).Str("id", g.ID).Msg("lookup placeholdera nieudany")
			continue
		}

		cat, err := r.resolveCategory(g.GroupIDs)
		if err != nil {
			r.Stats.Errors++
			r.log.Error().Err(err).Str("id", g.ID).Msg("kategoria nieosiągalna")
			continue
		}
		brandName := g.Brand
		if brandName == "" {
			brandName = defaultBrandName
		}
		brand, err := r.store.Brands.GetOrCreate(brandName)
		if err != nil {
			r.Stats.Errors++
			r.log.Error().Err(err).Str("brand", brandName).Msg("marka nieosiągalna")
			continue
		}
		slug, err := r.uniqueSlug(g.Name)
		if err != nil {
			r.Stats.Errors++
			r.log.Error().Err(err).Str("id", g.ID).Msg("slug nie do wygenerowania")
			continue
		}

		p := &db.Product{
			ParentExternalID: g.ID,
			Name:             g.Name,
			Slug:             slug,
			Active:           false,
			Pending:          true,
			ImagePath:        g.Picture,
			CategoryID:       cat.ID,
			BrandID:          brand.ID,
		}
		if err := r.store.Products.Create(p); err != nil {
			r.Stats.Errors++
			r.log.Error().Err(err).Str("id", g.ID).Msg("create placeholdera nieudany")
			continue
		}
		r.Stats.Created++
		r.linkAttributes(p, g.Properties)
	}
}

// resolveCategory bierze pierwszą grupę, która istnieje w bazie;
// brak grup albo brak dopasowania → kubeł "bez kategorii".
func (r *Reconciler) resolveCategory(groupIDs []string) (*db.Category, error) {
	for _, gid := range groupIDs {
		c, err := r.store.Categories.ByExternalID(gid)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, err
		}
	}
	return r.store.Categories.Uncategorized()
}

const maxSlugRetries = 5

func (r *Reconciler) uniqueSlug(name string) (string, error) {
	base := catalog.Slugify(name)
	slug := base
	for i := 0; i < maxSlugRetries; i++ {
		taken, err := r.store.Products.SlugTaken(slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		slug = base + "-" + catalog.RandomSuffix(4)
	}
	return "", fmt.Errorf("importer: slug %q zajęty po %d próbach", base, maxSlugRetries)
}

// linkAttributes podpina wartości cech po GUID-ach 1C. Puste i zerowe
// GUID-y oraz niezmapowane wartości liczymy osobno – to nie są błędy.
func (r *Reconciler) linkAttributes(p *db.Product, props []commerceml.PropertyValue) {
	for _, pv := range props {
		if allZeroGUID(pv.ValueID) {
			r.Stats.AttributesSkip++
			continue
		}
		av, err := r.store.Attributes.ValueByGUID(pv.ValueID)
		if errors.Is(err, catalog.ErrNotFound) {
			r.Stats.AttributesSkip++
			continue
		}
		if err != nil {
			r.Stats.Errors++
			r.log.Error().Err(err).Str("guid", pv.ValueID).Msg("lookup cechy nieudany")
			continue
		}
		if err := r.store.Attributes.LinkProduct(p.ID, av.ID); err != nil {
			r.Stats.Errors++
			r.log.Error().Err(err).Uint("product", p.ID).Uint("value", av.ID).Msg("link cechy nieudany")
			continue
		}
		r.Stats.AttributesLinked++
	}
}

// --- etap 3: wzbogacanie z ofert ---

// EnrichFromOffers nadaje placeholderom finalny external id, nazwę, SKU
// i aktywuje je. Ид oferty ma postać "parent#variant" – placeholdera
// szukamy po części przed '#'.
func (r *Reconciler) EnrichFromOffers(recs []commerceml.OfferRecord) {
	for _, o := range recs {
		parentID := o.ID
		if i := strings.Index(parentID, "#"); i >= 0 {
			parentID = parentID[:i]
		}
		p, err := r.store.Products.ByParentExternalID(parentID)
		if errors.Is(err, catalog.ErrNotFound) {
			r.Stats.Errors++
			r.logMissing(parentID)
			continue
		}
		if err != nil {
			r.Stats.Errors++
			r.log.Error().Err(err).Str("id", o.ID).Msg("lookup przy wzbogacaniu nieudany")
			continue
		}

		p.ExternalID = o.ID
		if o.Name != "" {
			p.Name = o.Name
		}
		if o.Article != "" {
			p.SKU = o.Article
		} else if p.SKU == "" {
			p.SKU = fallbackSKU(o.ID)
		}
		p.Active = true
		p.Pending = false
		if len(o.Characteristics) > 0 {
			p.SpecsJSON = mergeSpecs(p.SpecsJSON, o.Characteristics)
		}
		if err := r.store.Products.Save(p); err != nil {
			r.Stats.Errors++
			r.log.Error().Err(err).Str("id", o.ID).Msg("save przy wzbogacaniu nieudany")
			continue
		}
		r.Stats.Updated++
	}
}

// fallbackSKU – gdy oferta nie niesie artykułu: skrót z Ид.
func fallbackSKU(extID string) string {
	s := strings.ReplaceAll(extID, "-", "")
	s = strings.ReplaceAll(s, "#", "")
	if len(s) > 12 {
		s = s[:12]
	}
	return "1C-" + strings.ToUpper(s)
}

// mergeSpecs nakłada nowe charakterystyki na istniejący JSON; istniejący
// nieparsowalny JSON jest po prostu zastępowany.
func mergeSpecs(existing string, specs map[string]string) string {
	merged := map[string]string{}
	if existing != "" {
		_ = json.Unmarshal([]byte(existing), &merged)
	}
	for k, v := range specs {
		merged[k] = v
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return existing
	}
	return string(b)
}

// --- etap 4: ceny i stany ---

// ApplyPrices ustawia pola cenowe wg słownika typów cen. Cena
// federacyjna spada na RRC, jeśli własnej nie ma.
func (r *Reconciler) ApplyPrices(recs []commerceml.PriceRecord) {
	for _, rec := range recs {
		p := r.lookupProduct(rec.ID)
		if p == nil {
			continue
		}
		for _, pe := range rec.Prices {
			pt, err := r.store.PriceTypes.ByExternalID(pe.PriceTypeID)
			if errors.Is(err, catalog.ErrNotFound) {
				r.Stats.Errors++
				r.log.Warn().Str("price_type", pe.PriceTypeID).Str("id", rec.ID).Msg("niezmapowany typ ceny")
				continue
			}
			if err != nil {
				r.Stats.Errors++
				r.log.Error().Err(err).Str("price_type", pe.PriceTypeID).Msg("lookup typu ceny nieudany")
				continue
			}
			setPriceField(p, pt.Field, pe.Value)
		}
		if p.FederationPrice == 0 && p.RecommendedPrice > 0 {
			p.FederationPrice = p.RecommendedPrice
		}
		if err := r.store.Products.Save(p); err != nil {
			r.Stats.Errors++
			r.log.Error().Err(err).Str("id", rec.ID).Msg("save cen nieudany")
			continue
		}
		r.Stats.Updated++
	}
}

func setPriceField(p *db.Product, field string, v float64) {
	switch field {
	case db.FieldRetail:
		p.RetailPrice = v
	case db.FieldWholesale1:
		p.Wholesale1Price = v
	case db.FieldWholesale2:
		p.Wholesale2Price = v
	case db.FieldWholesale3:
		p.Wholesale3Price = v
	case db.FieldTrainer:
		p.TrainerPrice = v
	case db.FieldFederation:
		p.FederationPrice = v
	case db.FieldRecommended:
		p.RecommendedPrice = v
	case db.FieldMaxRetail:
		p.MaxRetailPrice = v
	}
}

// AccumulateStock sumuje ilości per external id w buforze pamięciowym.
// Wiele wpisów magazynowych tego samego towaru ma się dodać, nie
// nadpisać – zapis dopiero w FlushStock.
func (r *Reconciler) AccumulateStock(recs []commerceml.StockRecord) {
	for _, rec := range recs {
		for _, e := range rec.Entries {
			r.stockTotals[rec.ID] += e.Quantity
		}
	}
}

// FlushStock zapisuje zsumowane stany do produktów.
func (r *Reconciler) FlushStock() {
	for extID, qty := range r.stockTotals {
		p := r.lookupProduct(extID)
		if p == nil {
			continue
		}
		p.StockQuantity = qty
		if err := r.store.Products.Save(p); err != nil {
			r.Stats.Errors++
			r.log.Error().Err(err).Str("id", extID).Msg("save stanu nieudany")
			continue
		}
		r.Stats.Updated++
	}
	r.stockTotals = make(map[string]int)
}

// lookupProduct: najpierw po external id, potem fallback po parent id
// (z dopisaniem brakującego external id, żeby kolejne lookupy trafiały
// wprost). nil = nie znaleziono, licznik i log już podbite.
func (r *Reconciler) lookupProduct(extID string) *db.Product {
	p, err := r.store.Products.ByExternalID(extID)
	if err == nil {
		return p
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		r.Stats.Errors++
		r.log.Error().Err(err).Str("id", extID).Msg("lookup produktu nieudany")
		return nil
	}
	parentID := extID
	if i := strings.Index(parentID, "#"); i >= 0 {
		parentID = parentID[:i]
	}
	p, err = r.store.Products.ByParentExternalID(parentID)
	if errors.Is(err, catalog.ErrNotFound) {
		r.Stats.Errors++
		r.logMissing(extID)
		return nil
	}
	if err != nil {
		r.Stats.Errors++
		r.log.Error().Err(err).Str("id", extID).Msg("lookup po parent id nieudany")
		return nil
	}
	if p.ExternalID == "" {
		if err := r.store.Products.SetExternalID(p.ID, extID); err != nil {
			r.log.Warn().Err(err).Str("id", extID).Msg("backfill external id nieudany")
		} else {
			p.ExternalID = extID
		}
	}
	return p
}

// logMissing loguje brakujący towar raz na przebieg.
func (r *Reconciler) logMissing(extID string) {
	if _, seen := r.missingLogged[extID]; seen {
		return
	}
	r.missingLogged[extID] = struct{}{}
	r.log.Warn().Str("id", extID).Msg("brak placeholdera dla rekordu, pomijam")
}
