package importer

import (
	"errors"

	"github.com/bartek5186/onec2www/internal/catalog"
	"github.com/bartek5186/onec2www/internal/commerceml"
)

// BuildCategoryTree buduje drzewo kategorii w dwóch przebiegach:
// najpierw wszystkie węzły bez rodziców, potem wiązanie parent-id.
// Link tworzący cykl jest odrzucany i liczony, nie zapisywany.
func (r *Reconciler) BuildCategoryTree(recs []commerceml.CategoryRecord) {
	// przebieg 1: upsert węzłów
	ids := make(map[string]uint, len(recs))
	for _, rec := range recs {
		c, err := r.store.Categories.Upsert(rec.ID, rec.Name)
		if err != nil {
			r.Stats.Errors++
			r.log.Error().Err(err).Str("id", rec.ID).Msg("upsert kategorii nieudany")
			continue
		}
		ids[rec.ID] = c.ID
	}

	// przebieg 2: rodzice
	for _, rec := range recs {
		if rec.ParentID == "" {
			continue
		}
		childID, ok := ids[rec.ID]
		if !ok {
			continue // upsert węzła się nie udał, policzony wyżej
		}
		parentDB, ok := ids[rec.ParentID]
		if !ok {
			// rodzic spoza tej partii – może już siedzieć w bazie
			pc, err := r.store.Categories.ByExternalID(rec.ParentID)
			if errors.Is(err, catalog.ErrNotFound) {
				r.Stats.Errors++
				r.log.Warn().Str("id", rec.ID).Str("parent", rec.ParentID).Msg("rodzic kategorii nieznany")
				continue
			}
			if err != nil {
				r.Stats.Errors++
				r.log.Error().Err(err).Str("parent", rec.ParentID).Msg("lookup rodzica nieudany")
				continue
			}
			parentDB = pc.ID
		}
		if r.wouldCycle(childID, parentDB) {
			r.Stats.CyclesRejected++
			r.log.Warn().Str("id", rec.ID).Str("parent", rec.ParentID).Msg("link kategorii odrzucony: cykl")
			continue
		}
		pid := parentDB
		if err := r.store.Categories.SetParent(childID, &pid); err != nil {
			r.Stats.Errors++
			r.log.Error().Err(err).Str("id", rec.ID).Msg("set parent nieudany")
		}
	}
}

// wouldCycle idzie po łańcuchu przodków proponowanego rodzica; trafienie
// na sam węzeł albo na już odwiedzonego przodka (uszkodzone dane sprzed
// importu) znaczy cykl.
func (r *Reconciler) wouldCycle(childID, parentID uint) bool {
	if childID == parentID {
		return true
	}
	visited := map[uint]struct{}{parentID: {}}
	cur := parentID
	for {
		c, err := r.store.Categories.ByID(cur)
		if err != nil {
			return false // urwany łańcuch to nie cykl
		}
		if c.ParentID == nil {
			return false
		}
		next := *c.ParentID
		if next == childID {
			return true
		}
		if _, seen := visited[next]; seen {
			return true
		}
		visited[next] = struct{}{}
		cur = next
	}
}
