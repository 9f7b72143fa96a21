package commerceml

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

// ErrFileTooLarge – plik ponad limit; nie próbujemy go nawet otwierać
// do parsowania.
var ErrFileTooLarge = errors.New("commerceml: file too large")

const defaultMaxFileSize = 256 << 20

// Parser czyta pliki CommerceML. Dekoder bez DTD i zewnętrznych encji
// (encoding/xml ich nie rozwiązuje), charset przez x/net – eksporty 1C
// chodzą często w windows-1251.
type Parser struct {
	log         zerolog.Logger
	MaxFileSize int64
}

func NewParser(log zerolog.Logger) *Parser {
	return &Parser{
		log:         log.With().Str("component", "commerceml").Logger(),
		MaxFileSize: defaultMaxFileSize,
	}
}

// open waliduje istnienie i rozmiar pliku, zwraca dekoder strumieniowy.
func (p *Parser) open(path string) (*os.File, *xml.Decoder, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("commerceml: %w", err)
	}
	if fi.Size() > p.MaxFileSize {
		return nil, nil, fmt.Errorf("%w: %s (%d B)", ErrFileTooLarge, path, fi.Size())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	dec := xml.NewDecoder(bufio.NewReader(f))
	dec.CharsetReader = func(cs string, in io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(normalizeCharset(cs), in)
	}
	return f, dec, nil
}

// normalizeCharset mapuje nietypowe etykiety z nagłówków 1C na nazwy,
// które rozumie charset.NewReaderLabel.
func normalizeCharset(cs string) string {
	c := strings.TrimSpace(strings.ToLower(cs))
	switch c {
	case "windows1251", "win-1251", "cp1251", "cp-1251":
		return "windows-1251"
	case "utf8":
		return "utf-8"
	default:
		return c
	}
}

// local zdejmuje prefiks namespace'u z nazwy elementu – downstream
// dopasowujemy tylko po lokalnej nazwie.
func local(n xml.Name) string { return n.Local }

// --- towary (import*.xml) ---

type xmlProperty struct {
	ID     string   `xml:"Ид"`
	Values []string `xml:"Значение"`
}

type xmlGood struct {
	ID         string        `xml:"Ид"`
	Article    string        `xml:"Артикул"`
	Name       string        `xml:"Наименование"`
	GroupIDs   []string      `xml:"Группы>Ид"`
	Brand      string        `xml:"Изготовитель>Наименование"`
	Picture    string        `xml:"Картинка"`
	Properties []xmlProperty `xml:"ЗначенияСвойств>ЗначенияСвойства"`
}

// ParseGoods wyciąga płaskie rekordy Товар. Rekord bez Ид jest pomijany
// (nie wywala całego pliku).
func (p *Parser) ParseGoods(path string) ([]GoodsRecord, error) {
	f, dec, err := p.open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []GoodsRecord
	skipped := 0
	err = p.walk(dec, "Товар", func(dec *xml.Decoder, se xml.StartElement) error {
		var g xmlGood
		if err := dec.DecodeElement(&g, &se); err != nil {
			return err
		}
		if strings.TrimSpace(g.ID) == "" {
			skipped++
			return nil
		}
		rec := GoodsRecord{
			ID:       strings.TrimSpace(g.ID),
			Name:     strings.TrimSpace(g.Name),
			Article:  strings.TrimSpace(g.Article),
			GroupIDs: trimAll(g.GroupIDs),
			Brand:    strings.TrimSpace(g.Brand),
			Picture:  strings.TrimSpace(g.Picture),
		}
		for _, pr := range g.Properties {
			for _, v := range pr.Values {
				rec.Properties = append(rec.Properties, PropertyValue{
					PropertyID: strings.TrimSpace(pr.ID),
					ValueID:    strings.TrimSpace(v),
				})
			}
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		p.log.Warn().Str("file", path).Int("skipped", skipped).Msg("towary bez Ид pominięte")
	}
	return out, nil
}

// --- grupy / drzewo kategorii ---

type xmlGroup struct {
	ID       string     `xml:"Ид"`
	Name     string     `xml:"Наименование"`
	Children []xmlGroup `xml:"Группы>Группа"`
}

// ParseCategories czyta drzewo Классификатор/Группы rekurencyjnie (DFS),
// propagując parent-id w dół.
func (p *Parser) ParseCategories(path string) ([]CategoryRecord, error) {
	f, dec, err := p.open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// DecodeElement zjada zagnieżdżone Группы, więc każda Группа widziana
	// w pętli tokenów to korzeń poddrzewa.
	var out []CategoryRecord
	err = p.walk(dec, "Группа", func(dec *xml.Decoder, se xml.StartElement) error {
		var g xmlGroup
		if err := dec.DecodeElement(&g, &se); err != nil {
			return err
		}
		flattenGroups(g, "", &out)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commerceml parse %s: %w", path, err)
	}
	return out, nil
}

func flattenGroups(g xmlGroup, parentID string, out *[]CategoryRecord) {
	id := strings.TrimSpace(g.ID)
	if id == "" {
		return // bez Ид nie ma czego wiązać; dzieci też gubią kotwicę
	}
	*out = append(*out, CategoryRecord{
		ID:       id,
		Name:     strings.TrimSpace(g.Name),
		ParentID: parentID,
	})
	for _, ch := range g.Children {
		flattenGroups(ch, id, out)
	}
}

// --- oferty (offers*.xml) ---

type xmlCharacteristic struct {
	Name  string `xml:"Наименование"`
	Value string `xml:"Значение"`
}

type xmlOffer struct {
	ID              string              `xml:"Ид"`
	Article         string              `xml:"Артикул"`
	Name            string              `xml:"Наименование"`
	Characteristics []xmlCharacteristic `xml:"ХарактеристикиТовара>ХарактеристикаТовара"`

	// pola cenowe i magazynowe – te same elementy Предложение niosą
	// ceny (prices*.xml) i stany (rests*.xml)
	Prices []struct {
		PriceTypeID string `xml:"ИдТипаЦены"`
		Value       string `xml:"ЦенаЗаЕдиницу"`
	} `xml:"Цены>Цена"`
	Quantity string `xml:"Количество"`
	Rests    []struct {
		WarehouseID string `xml:"Ид,attr"`
		IDElem      string `xml:"Ид"`
		Quantity    string `xml:"Количество"`
	} `xml:"Остатки>Остаток>Склад"`
	Warehouses []struct {
		WarehouseID string `xml:"ИдСклада,attr"`
		Quantity    string `xml:"КоличествоНаСкладе,attr"`
	} `xml:"Склад"`
}

// ParseOffers zwraca rekordy wzbogacające placeholder: finalny Ид,
// artykuł, charakterystyki.
func (p *Parser) ParseOffers(path string) ([]OfferRecord, error) {
	f, dec, err := p.open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []OfferRecord
	err = p.walkOffers(dec, func(o xmlOffer) {
		rec := OfferRecord{
			ID:      strings.TrimSpace(o.ID),
			Name:    strings.TrimSpace(o.Name),
			Article: strings.TrimSpace(o.Article),
		}
		if len(o.Characteristics) > 0 {
			rec.Characteristics = make(map[string]string, len(o.Characteristics))
			for _, ch := range o.Characteristics {
				if k := strings.TrimSpace(ch.Name); k != "" {
					rec.Characteristics[k] = strings.TrimSpace(ch.Value)
				}
			}
		}
		out = append(out, rec)
	})
	return out, err
}

// ParsePrices zwraca ceny per Предложение; wartości nieparsowalne
// liczbowo są gubione per-pole, rekord zostaje.
func (p *Parser) ParsePrices(path string) ([]PriceRecord, error) {
	f, dec, err := p.open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []PriceRecord
	err = p.walkOffers(dec, func(o xmlOffer) {
		rec := PriceRecord{ID: strings.TrimSpace(o.ID)}
		for _, pe := range o.Prices {
			v, perr := parseDecimal(pe.Value)
			if perr != nil {
				p.log.Debug().Str("id", rec.ID).Str("raw", pe.Value).Msg("cena nieparsowalna, pomijam pole")
				continue
			}
			rec.Prices = append(rec.Prices, PriceEntry{
				PriceTypeID: strings.TrimSpace(pe.PriceTypeID),
				Value:       v,
			})
		}
		if len(rec.Prices) > 0 {
			out = append(out, rec)
		}
	})
	return out, err
}

// ParseStock zwraca stany per Предложение. Ilość parsowana jako float
// i ucinana do int (3.9 -> 3), nie zaokrąglana.
func (p *Parser) ParseStock(path string) ([]StockRecord, error) {
	f, dec, err := p.open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []StockRecord
	err = p.walkOffers(dec, func(o xmlOffer) {
		rec := StockRecord{ID: strings.TrimSpace(o.ID)}
		for _, r := range o.Rests {
			wid := strings.TrimSpace(r.WarehouseID)
			if wid == "" {
				wid = strings.TrimSpace(r.IDElem)
			}
			rec.Entries = append(rec.Entries, StockEntry{
				WarehouseID: wid,
				Quantity:    truncQuantity(r.Quantity),
			})
		}
		for _, w := range o.Warehouses {
			rec.Entries = append(rec.Entries, StockEntry{
				WarehouseID: strings.TrimSpace(w.WarehouseID),
				Quantity:    truncQuantity(w.Quantity),
			})
		}
		// Количество bez магазина – jeden wpis bez id składu
		if len(rec.Entries) == 0 && strings.TrimSpace(o.Quantity) != "" {
			rec.Entries = append(rec.Entries, StockEntry{Quantity: truncQuantity(o.Quantity)})
		}
		if len(rec.Entries) > 0 {
			out = append(out, rec)
		}
	})
	return out, err
}

// --- typy cen (priceLists / ПакетПредложений) ---

type xmlPriceType struct {
	ID   string `xml:"Ид"`
	Name string `xml:"Наименование"`
}

func (p *Parser) ParsePriceTypes(path string) ([]PriceTypeRecord, error) {
	f, dec, err := p.open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []PriceTypeRecord
	err = p.walk(dec, "ТипЦены", func(dec *xml.Decoder, se xml.StartElement) error {
		var pt xmlPriceType
		if err := dec.DecodeElement(&pt, &se); err != nil {
			return err
		}
		if strings.TrimSpace(pt.ID) == "" {
			return nil
		}
		out = append(out, PriceTypeRecord{
			ID:   strings.TrimSpace(pt.ID),
			Name: strings.TrimSpace(pt.Name),
		})
		return nil
	})
	return out, err
}

// --- wspólne ---

// walk woła fn na każdym elemencie o podanej lokalnej nazwie.
func (p *Parser) walk(dec *xml.Decoder, element string, fn func(*xml.Decoder, xml.StartElement) error) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("commerceml parse: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok && local(se.Name) == element {
			if err := fn(dec, se); err != nil {
				return err
			}
		}
	}
}

func (p *Parser) walkOffers(dec *xml.Decoder, fn func(xmlOffer)) error {
	skipped := 0
	err := p.walk(dec, "Предложение", func(dec *xml.Decoder, se xml.StartElement) error {
		var o xmlOffer
		if err := dec.DecodeElement(&o, &se); err != nil {
			return err
		}
		if strings.TrimSpace(o.ID) == "" {
			skipped++
			return nil
		}
		fn(o)
		return nil
	})
	if skipped > 0 {
		p.log.Warn().Int("skipped", skipped).Msg("предложения bez Ид pominięte")
	}
	return err
}

func trimAll(ss []string) []string {
	out := ss[:0]
	for _, s := range ss {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseDecimal: 1C miewa przecinek zamiast kropki i spacje tysięcy.
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.ReplaceAll(s, " ", "")
	return strconv.ParseFloat(s, 64)
}

// truncQuantity: float→int przez ucięcie części ułamkowej.
func truncQuantity(s string) int {
	v, err := parseDecimal(s)
	if err != nil {
		return 0
	}
	return int(v)
}
