package importer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/integrations"
	"github.com/bartek5186/pos2cloud/internal/model"
)

type recordingCatalog struct {
	saved []model.ProductPatch
}

func (c *recordingCatalog) SaveProduct(_ context.Context, p model.ProductPatch, _ bool) (model.Product, error) {
	c.saved = append(c.saved, p)
	out := model.NewProduct(*p.ID)
	p.Apply(&out)
	return out, nil
}

// "Kawa ziarnista" w iso-8859-2: ą = 0xB1
const exportXML = "<?xml version=\"1.0\" encoding=\"ISO-8859-2\"?>\n" +
	"<dane><transmisja_id>42</transmisja_id><towary>" +
	"<towar><kod>590001</kod><nazwa>Kawa \xb1</nazwa><kategoria>Napoje</kategoria>" +
	"<cena_detal>12,50</cena_detal><cena_hurtowa>8.10</cena_hurtowa>" +
	"<ilosc_w_opakowaniu>6</ilosc_w_opakowaniu><stan_minimalny>2</stan_minimalny>" +
	"<data_waznosci>2027-01-31 00:00:00</data_waznosci>" +
	"<magazyny><magazyn><magazyn_id>1</magazyn_id><stan_magazynu>3</stan_magazynu></magazyn>" +
	"<magazyn><magazyn_id>2</magazyn_id><stan_magazynu>4,000</stan_magazynu></magazyn></magazyny></towar>" +
	"<towar><kod>590002</kod><nazwa>Stary</nazwa><do_usuniecia>Y</do_usuniecia></towar>" +
	"<towar><kod></kod><nazwa>Bez kodu</nazwa></towar>" +
	"</towary></dane>"

func newImporter(t *testing.T) (*Importer, *recordingCatalog, string) {
	t.Helper()
	h, err := db.OpenAt(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, h.Migrate())
	t.Cleanup(func() { _ = h.Close() })

	dir := t.TempDir()
	cat := &recordingCatalog{}
	raw, _ := json.Marshal(Config{WatchDir: dir, PollSec: 1})
	inst, err := factory(zerolog.Nop(), raw, integrations.Deps{DB: h, Catalog: cat})
	require.NoError(t, err)
	return inst.(*Importer), cat, dir
}

func TestScanImportsCatalogExport(t *testing.T) {
	imp, cat, dir := newImporter(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "exp_wyk_1_20260301120000.xml"), []byte(exportXML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	imp.ScanOnce(ctx, dir)

	require.Len(t, cat.saved, 1)
	p := model.NewProduct(ProductID("590001"))
	cat.saved[0].Apply(&p)
	assert.Equal(t, "Kawa ą", p.Name)
	assert.Equal(t, 7, p.Quantity)
	assert.Equal(t, "12.5", p.PriceSell.String())
	assert.Equal(t, "8.1", p.PriceBuy.String())
	assert.Equal(t, 6, p.UnitsPerPackage)
	assert.Equal(t, model.ProductBoth, p.ProductType)
	assert.Equal(t, 2, p.MinStock)
	require.NotNil(t, p.ExpiryDate)
	assert.Equal(t, "2027-01-31", *p.ExpiryDate)
	assert.True(t, p.InCategory("Napoje"))

	// ta sama treść drugi raz: plik już DONE
	imp.ScanOnce(ctx, dir)
	assert.Len(t, cat.saved, 1)

	var rec db.ImportFile
	require.NoError(t, imp.db.DB.Take(&rec).Error)
	assert.Equal(t, db.ImportDone, rec.Status)
	assert.Equal(t, 1, rec.Products)
}

func TestBrokenFileIsMarkedFailed(t *testing.T) {
	imp, cat, dir := newImporter(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "exp_wyk_bad.xml"), []byte("<dane><towary><towar><kod>1"), 0o644))

	imp.ScanOnce(context.Background(), dir)

	assert.Empty(t, cat.saved)
	var rec db.ImportFile
	require.NoError(t, imp.db.DB.Take(&rec).Error)
	assert.Equal(t, db.ImportError, rec.Status)
	assert.NotEmpty(t, rec.LastError)
}

func TestProductIDIsStable(t *testing.T) {
	assert.Equal(t, ProductID("590001"), ProductID(" 590001 "))
	assert.NotEqual(t, ProductID("590001"), ProductID("590002"))
}

func TestFactoryRequiresDeps(t *testing.T) {
	_, err := factory(zerolog.Nop(), json.RawMessage(`{"watch_dir":"/tmp/x"}`), integrations.Deps{})
	assert.Error(t, err)
}

func TestRegisteredUnderConfigKey(t *testing.T) {
	assert.Contains(t, integrations.Names(), "importer")
	_, ok := integrations.Get("importer")
	assert.True(t, ok)
}
