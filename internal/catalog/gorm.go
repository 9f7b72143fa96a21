package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/bartek5186/onec2www/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewStore buduje komplet repozytoriów na jednym *gorm.DB.
func NewStore(gdb *gorm.DB) *Store {
	return &Store{
		Products:       &gormProducts{gdb},
		Categories:     &gormCategories{gdb},
		Brands:         &gormBrands{gdb},
		PriceTypes:     &gormPriceTypes{gdb},
		Attributes:     &gormAttributes{gdb},
		ImportSessions: &gormImportSessions{gdb},
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- products ---

type gormProducts struct{ gdb *gorm.DB }

func (r *gormProducts) ByExternalID(extID string) (*db.Product, error) {
	var p db.Product
	if err := r.gdb.Where("external_id = ?", extID).Take(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *gormProducts) ByParentExternalID(parentID string) (*db.Product, error) {
	var p db.Product
	if err := r.gdb.Where("parent_external_id = ?", parentID).Take(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *gormProducts) Create(p *db.Product) error {
	return r.gdb.Create(p).Error
}

func (r *gormProducts) Save(p *db.Product) error {
	return r.gdb.Save(p).Error
}

func (r *gormProducts) SlugTaken(slug string) (bool, error) {
	var n int64
	if err := r.gdb.Model(&db.Product{}).Where("slug = ?", slug).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *gormProducts) SetExternalID(id uint, extID string) error {
	return r.gdb.Model(&db.Product{}).Where("id = ?", id).
		Update("external_id", extID).Error
}

// --- categories ---

type gormCategories struct{ gdb *gorm.DB }

func (r *gormCategories) ByExternalID(extID string) (*db.Category, error) {
	var c db.Category
	if err := r.gdb.Where("external_id = ?", extID).Take(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *gormCategories) ByID(id uint) (*db.Category, error) {
	var c db.Category
	if err := r.gdb.Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *gormCategories) Upsert(extID, name string) (*db.Category, error) {
	c := db.Category{ExternalID: extID, Name: name, Slug: Slugify(name)}
	err := r.gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&c).Error
	if err != nil {
		return nil, err
	}
	// po upsercie dociągnij aktualny wiersz (ID bywa zerowe przy konflikcie)
	return r.ByExternalID(extID)
}

func (r *gormCategories) SetParent(id uint, parentID *uint) error {
	return r.gdb.Model(&db.Category{}).Where("id = ?", id).
		Update("parent_id", parentID).Error
}

const uncategorizedExtID = "__uncategorized__"

func (r *gormCategories) Uncategorized() (*db.Category, error) {
	if c, err := r.ByExternalID(uncategorizedExtID); err == nil {
		return c, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return r.Upsert(uncategorizedExtID, "Bez kategorii")
}

// --- brands ---

type gormBrands struct{ gdb *gorm.DB }

func (r *gormBrands) GetOrCreate(name string) (*db.Brand, error) {
	var b db.Brand
	err := r.gdb.Where("name = ?", name).Take(&b).Error
	if err == nil {
		return &b, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	b = db.Brand{Name: name}
	if err := r.gdb.Create(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// --- price types ---

type gormPriceTypes struct{ gdb *gorm.DB }

func (r *gormPriceTypes) Upsert(extID, name, field string) (*db.PriceType, error) {
	pt := db.PriceType{ExternalID: extID, Name: name, Field: field}
	err := r.gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "field"}),
	}).Create(&pt).Error
	if err != nil {
		return nil, err
	}
	return r.ByExternalID(extID)
}

func (r *gormPriceTypes) ByExternalID(extID string) (*db.PriceType, error) {
	var pt db.PriceType
	if err := r.gdb.Where("external_id = ?", extID).Take(&pt).Error; err != nil {
		return nil, notFound(err)
	}
	return &pt, nil
}

// --- attributes ---

type gormAttributes struct{ gdb *gorm.DB }

func (r *gormAttributes) ValueByGUID(guid string) (*db.AttributeValue, error) {
	var v db.AttributeValue
	if err := r.gdb.Where("external_1c = ?", guid).Take(&v).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (r *gormAttributes) LinkProduct(productID, valueID uint) error {
	link := db.ProductAttributeValue{ProductID: productID, AttributeValueID: valueID}
	return r.gdb.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
}

// --- import sessions ---

type gormImportSessions struct{ gdb *gorm.DB }

func (r *gormImportSessions) Create(kind string) (*db.ImportSession, error) {
	s := db.ImportSession{Kind: kind, Status: db.ImportPending}
	if err := r.gdb.Create(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormImportSessions) Claim(kind string) (*db.ImportSession, bool, error) {
	var sess db.ImportSession
	var already bool
	err := r.gdb.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status IN ?", []string{db.ImportStarted, db.ImportInProgress})
		// SELECT ... FOR UPDATE serializuje wyścig dwóch triggerów;
		// sqlite nie zna tej klauzuli, tam wystarcza transakcja.
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		err := q.Take(&sess).Error
		if err == nil {
			already = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		now := time.Now()
		sess = db.ImportSession{Kind: kind, Status: db.ImportStarted, StartedAt: &now}
		return tx.Create(&sess).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &sess, already, nil
}

func (r *gormImportSessions) ReapStale(maxAgeMin int) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(maxAgeMin) * time.Minute)
	now := time.Now()
	res := r.gdb.Model(&db.ImportSession{}).
		Where("status IN ?", []string{db.ImportPending, db.ImportStarted, db.ImportInProgress}).
		Where("updated_at < ?", cutoff).
		Updates(map[string]any{
			"status":      db.ImportFailed,
			"last_error":  "expired: przekroczone okno staleness",
			"finished_at": &now,
		})
	return res.RowsAffected, res.Error
}

func (r *gormImportSessions) MarkInProgress(id uint) error {
	return r.setStatus(id, db.ImportInProgress, nil)
}

func (r *gormImportSessions) MarkCompleted(id uint) error {
	now := time.Now()
	return r.setStatus(id, db.ImportCompleted, &now)
}

func (r *gormImportSessions) MarkFailed(id uint, reason string) error {
	now := time.Now()
	return r.gdb.Model(&db.ImportSession{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":      db.ImportFailed,
			"last_error":  reason,
			"finished_at": &now,
		}).Error
}

func (r *gormImportSessions) setStatus(id uint, status string, finished *time.Time) error {
	upd := map[string]any{"status": status}
	if finished != nil {
		upd["finished_at"] = finished
	}
	return r.gdb.Model(&db.ImportSession{}).Where("id = ?", id).Updates(upd).Error
}

func (r *gormImportSessions) AppendReport(id uint, line string) error {
	// read-modify-write zamiast konkatenacji w SQL – '||' nie działa na mysql
	var s db.ImportSession
	if err := r.gdb.Select("id", "report").Where("id = ?", id).Take(&s).Error; err != nil {
		return notFound(err)
	}
	stamp := time.Now().Format("15:04:05")
	report := s.Report + fmt.Sprintf("[%s] %s\n", stamp, line)
	return r.gdb.Model(&db.ImportSession{}).Where("id = ?", id).
		Update("report", report).Error
}

func (r *gormImportSessions) SaveStats(s *db.ImportSession) error {
	return r.gdb.Model(&db.ImportSession{}).Where("id = ?", s.ID).
		Updates(map[string]any{
			"created":           s.Created,
			"updated":           s.Updated,
			"skipped":           s.Skipped,
			"errors":            s.Errors,
			"attributes_linked": s.AttributesLinked,
			"attributes_skip":   s.AttributesSkip,
			"cycles_rejected":   s.CyclesRejected,
		}).Error
}

func (r *gormImportSessions) ByID(id uint) (*db.ImportSession, error) {
	var s db.ImportSession
	if err := r.gdb.Where("id = ?", id).Take(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}
