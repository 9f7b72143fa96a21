package commerceml_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/onec2www/internal/commerceml"
)

func writeXML(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const goodsXML = `<?xml version="1.0" encoding="UTF-8"?>
<КоммерческаяИнформация>
  <Классификатор>
    <Группы>
      <Группа>
        <Ид>G1</Ид>
        <Наименование>Sprzęt</Наименование>
        <Группы>
          <Группа>
            <Ид>G2</Ид>
            <Наименование>Rakiety</Наименование>
          </Группа>
        </Группы>
      </Группа>
    </Группы>
  </Классификатор>
  <Каталог>
    <Товары>
      <Товар>
        <Ид>P1</Ид>
        <Артикул>ART-1</Артикул>
        <Наименование>Rakieta Pro</Наименование>
        <Группы><Ид>G2</Ид></Группы>
        <Изготовитель><Наименование>Acme</Наименование></Изготовитель>
        <Картинка>import_files/p1.jpg</Картинка>
        <ЗначенияСвойств>
          <ЗначенияСвойства>
            <Ид>PROP-1</Ид>
            <Значение>VAL-1</Значение>
          </ЗначенияСвойства>
        </ЗначенияСвойств>
      </Товар>
      <Товар>
        <Наименование>Bez identyfikatora</Наименование>
      </Товар>
    </Товары>
  </Каталог>
</КоммерческаяИнформация>`

func TestParser_ParseGoods(t *testing.T) {
	p := commerceml.NewParser(zerolog.Nop())
	path := writeXML(t, "import_1.xml", goodsXML)

	recs, err := p.ParseGoods(path)
	require.NoError(t, err)
	require.Len(t, recs, 1, "towar bez Ид ma zostać pominięty, nie wywalić pliku")

	g := recs[0]
	assert.Equal(t, "P1", g.ID)
	assert.Equal(t, "ART-1", g.Article)
	assert.Equal(t, "Rakieta Pro", g.Name)
	assert.Equal(t, []string{"G2"}, g.GroupIDs)
	assert.Equal(t, "Acme", g.Brand)
	assert.Equal(t, "import_files/p1.jpg", g.Picture)
	require.Len(t, g.Properties, 1)
	assert.Equal(t, "PROP-1", g.Properties[0].PropertyID)
	assert.Equal(t, "VAL-1", g.Properties[0].ValueID)
}

func TestParser_ParseCategories(t *testing.T) {
	p := commerceml.NewParser(zerolog.Nop())
	path := writeXML(t, "import_1.xml", goodsXML)

	recs, err := p.ParseCategories(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "G1", recs[0].ID)
	assert.Equal(t, "", recs[0].ParentID)
	assert.Equal(t, "G2", recs[1].ID)
	assert.Equal(t, "G1", recs[1].ParentID, "parent-id propaguje się w głąb drzewa")
}

const offersXML = `<?xml version="1.0" encoding="UTF-8"?>
<КоммерческаяИнформация>
  <ПакетПредложений>
    <ТипыЦен>
      <ТипЦены><Ид>T1</Ид><Наименование>Розничная</Наименование></ТипЦены>
      <ТипЦены><Ид>T2</Ид><Наименование>Опт 1</Наименование></ТипЦены>
    </ТипыЦен>
    <Предложения>
      <Предложение>
        <Ид>P1#V1</Ид>
        <Артикул>SKU-1</Артикул>
        <Наименование>Rakieta Pro L3</Наименование>
        <ХарактеристикиТовара>
          <ХарактеристикаТовара>
            <Наименование>Rozmiar</Наименование>
            <Значение>L3</Значение>
          </ХарактеристикаТовара>
        </ХарактеристикиТовара>
        <Цены>
          <Цена><ИдТипаЦены>T1</ИдТипаЦены><ЦенаЗаЕдиницу>100,50</ЦенаЗаЕдиницу></Цена>
          <Цена><ИдТипаЦены>T2</ИдТипаЦены><ЦенаЗаЕдиницу>zepsute</ЦенаЗаЕдиницу></Цена>
        </Цены>
        <Количество>3.9</Количество>
      </Предложение>
      <Предложение>
        <Наименование>Bez Ид</Наименование>
      </Предложение>
    </Предложения>
  </ПакетПредложений>
</КоммерческаяИнформация>`

func TestParser_ParseOffers(t *testing.T) {
	p := commerceml.NewParser(zerolog.Nop())
	path := writeXML(t, "offers_1.xml", offersXML)

	recs, err := p.ParseOffers(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	o := recs[0]
	assert.Equal(t, "P1#V1", o.ID)
	assert.Equal(t, "SKU-1", o.Article)
	assert.Equal(t, "Rakieta Pro L3", o.Name)
	assert.Equal(t, map[string]string{"Rozmiar": "L3"}, o.Characteristics)
}

func TestParser_ParsePrices(t *testing.T) {
	p := commerceml.NewParser(zerolog.Nop())
	path := writeXML(t, "prices_1.xml", offersXML)

	recs, err := p.ParsePrices(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	// przecinek dziesiętny znormalizowany, nieparsowalna cena zgubiona per-pole
	require.Len(t, recs[0].Prices, 1)
	assert.Equal(t, "T1", recs[0].Prices[0].PriceTypeID)
	assert.InDelta(t, 100.50, recs[0].Prices[0].Value, 0.001)
}

func TestParser_ParseStockTruncatesQuantity(t *testing.T) {
	p := commerceml.NewParser(zerolog.Nop())
	path := writeXML(t, "rests_1.xml", offersXML)

	recs, err := p.ParseStock(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Len(t, recs[0].Entries, 1)
	assert.Equal(t, 3, recs[0].Entries[0].Quantity, "3.9 ucina się do 3")
}

const restsXML = `<?xml version="1.0" encoding="UTF-8"?>
<КоммерческаяИнформация>
  <ПакетПредложений>
    <Предложения>
      <Предложение>
        <Ид>P1#V1</Ид>
        <Остатки>
          <Остаток><Склад><Ид>W1</Ид><Количество>3</Количество></Склад></Остаток>
          <Остаток><Склад><Ид>W2</Ид><Количество>4</Количество></Склад></Остаток>
        </Остатки>
      </Предложение>
    </Предложения>
  </ПакетПредложений>
</КоммерческаяИнформация>`

func TestParser_ParseStockPerWarehouse(t *testing.T) {
	p := commerceml.NewParser(zerolog.Nop())
	path := writeXML(t, "rests_2.xml", restsXML)

	recs, err := p.ParseStock(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Len(t, recs[0].Entries, 2)
	assert.Equal(t, "W1", recs[0].Entries[0].WarehouseID)
	assert.Equal(t, 3, recs[0].Entries[0].Quantity)
	assert.Equal(t, "W2", recs[0].Entries[1].WarehouseID)
	assert.Equal(t, 4, recs[0].Entries[1].Quantity)
}

func TestParser_ParsePriceTypes(t *testing.T) {
	p := commerceml.NewParser(zerolog.Nop())
	path := writeXML(t, "priceLists.xml", offersXML)

	recs, err := p.ParsePriceTypes(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "T1", recs[0].ID)
	assert.Equal(t, "Розничная", recs[0].Name)
	assert.Equal(t, "T2", recs[1].ID)
}

func TestParser_NonstandardCharsetLabel(t *testing.T) {
	p := commerceml.NewParser(zerolog.Nop())
	content := `<?xml version="1.0" encoding="utf8"?>
<КоммерческаяИнформация><Каталог><Товары>
<Товар><Ид>P9</Ид><Наименование>Etykieta bez myślnika</Наименование></Товар>
</Товары></Каталог></КоммерческаяИнформация>`
	path := writeXML(t, "import_cs.xml", content)

	recs, err := p.ParseGoods(path)
	require.NoError(t, err, "etykieta utf8 przechodzi przez normalizację charsetu")
	require.Len(t, recs, 1)
	assert.Equal(t, "P9", recs[0].ID)
}

func TestParser_FileTooLarge(t *testing.T) {
	p := commerceml.NewParser(zerolog.Nop())
	p.MaxFileSize = 10
	path := writeXML(t, "import_big.xml", goodsXML)

	_, err := p.ParseGoods(path)
	assert.ErrorIs(t, err, commerceml.ErrFileTooLarge)
}

func TestParser_MissingFile(t *testing.T) {
	p := commerceml.NewParser(zerolog.Nop())
	_, err := p.ParseGoods(filepath.Join(t.TempDir(), "nie-ma.xml"))
	assert.Error(t, err)
}
