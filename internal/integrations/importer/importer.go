// Package importer przegląda katalog z eksportami kartoteki towarów (XML
// w stylu PC-Market, często windows-1250 / iso-8859-2) i zapisuje produkty
// przez katalog aplikacji, więc trafiają do outboxa jak edycje z UI.
package importer

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html/charset"

	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/integrations"
	"github.com/bartek5186/pos2cloud/internal/model"
)

type Config struct {
	WatchDir string `json:"watch_dir"` // np. ~/pos2cloud/imports
	PollSec  int    `json:"poll_sec"`  // np. 5-10s w dev
	Prefix   string `json:"prefix"`    // pusty = exp_wyk_
}

// namespace dla stabilnych id produktów z kodu towaru; ten sam kod daje ten
// sam produkt na każdym urządzeniu
var productNS = uuid.MustParse("5b0c3f7e-2a51-4d8e-9c6b-7f1e0a3d9b42")

type Importer struct {
	log     zerolog.Logger
	cfg     Config
	db      *db.Handle
	catalog integrations.Catalog

	cancel context.CancelFunc
}

type xmlMagazyn struct {
	MagazynID int64  `xml:"magazyn_id"`
	Stan      string `xml:"stan_magazynu"` // może być "", więc string
}

type xmlTowar struct {
	Kod         string `xml:"kod"`
	Nazwa       string `xml:"nazwa"`
	Kategoria   string `xml:"kategoria"`
	CenaDetal   string `xml:"cena_detal"`
	CenaZakupu  string `xml:"cena_zakupu"`
	CenaHurtowa string `xml:"cena_hurtowa"` // gdy brak ceny zakupu
	Opakowanie  string `xml:"ilosc_w_opakowaniu"`
	StanMin     string `xml:"stan_minimalny"`
	DataWazn    string `xml:"data_waznosci"`
	DoUsuniecia string `xml:"do_usuniecia"` // "Y"/"N"

	Magazyny []xmlMagazyn `xml:"magazyny>magazyn"`
}

func (i *Importer) Name() string { return "importer" }

func (i *Importer) Start(ctx context.Context) error {
	ctx, i.cancel = context.WithCancel(ctx)
	i.log.Info().Str("integration", i.Name()).Msg("start")

	dir := expandHome(i.cfg.WatchDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("importer: %w", err)
	}
	ticker := time.NewTicker(i.interval())
	defer ticker.Stop()

	// pierwszy przebieg
	i.ScanOnce(ctx, dir)

	for {
		select {
		case <-ctx.Done():
			i.log.Info().Str("integration", i.Name()).Msg("stop")
			return nil
		case <-ticker.C:
			i.ScanOnce(ctx, dir)
		}
	}
}

func (i *Importer) Stop() {
	if i.cancel != nil {
		i.cancel()
	}
}

func (i *Importer) interval() time.Duration {
	if i.cfg.PollSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(i.cfg.PollSec) * time.Second
}

func (i *Importer) prefix() string {
	if i.cfg.Prefix == "" {
		return "exp_wyk_"
	}
	return i.cfg.Prefix
}

// ScanOnce przetwarza nowe pliki; plik o znanej treści i statusie done jest pomijany.
func (i *Importer) ScanOnce(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		i.log.Error().Err(err).Str("dir", dir).Msg("nie mogę odczytać katalogu")
		return
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, i.prefix()) || !strings.EqualFold(filepath.Ext(name), ".xml") {
			continue
		}
		full := filepath.Join(dir, name)

		rec, err := i.register(ctx, full, name)
		if err != nil {
			i.log.Error().Err(err).Str("file", name).Msg("rejestracja pliku nieudana")
			continue
		}
		if rec.Status == db.ImportDone {
			i.log.Debug().Str("file", name).Msg("plik już był i DONE, pomijam")
			continue
		}

		n, err := i.processFile(ctx, full)
		if err != nil {
			i.log.Error().Err(err).Str("file", name).Uint("import_id", rec.ImportID).Msg("błąd przetwarzania pliku")
			_ = i.db.MarkImportFailed(ctx, rec.ImportID, err)
			continue
		}
		if err := i.db.MarkImportDone(ctx, rec.ImportID, n); err != nil {
			i.log.Error().Err(err).Uint("import_id", rec.ImportID).Msg("zapis statusu importu nieudany")
		}
		i.log.Info().Str("file", name).Uint("import_id", rec.ImportID).Int("products", n).Msg("przetworzono OK")
	}
}

func (i *Importer) register(ctx context.Context, fullPath, name string) (db.ImportFile, error) {
	fi, err := os.Stat(fullPath)
	if err != nil {
		return db.ImportFile{}, err
	}
	h, err := fileSHA256(fullPath)
	if err != nil {
		return db.ImportFile{}, err
	}
	rec, _, err := i.db.RegisterImportFile(ctx, name, h, fi.Size())
	return rec, err
}

// processFile strumieniowo czyta <towar> i zapisuje każdy produkt osobno.
func (i *Importer) processFile(ctx context.Context, fullPath string) (int, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := xml.NewDecoder(bufio.NewReader(f))
	dec.CharsetReader = func(cs string, in io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(normalizeCharset(cs), in)
	}

	saved := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return saved, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || !strings.EqualFold(se.Name.Local, "towar") {
			continue
		}
		var t xmlTowar
		if err := dec.DecodeElement(&t, &se); err != nil {
			return saved, err
		}
		patch, ok := toPatch(t)
		if !ok {
			continue
		}
		if _, err := i.catalog.SaveProduct(ctx, patch, true); err != nil {
			return saved, fmt.Errorf("towar %q: %w", t.Kod, err)
		}
		saved++
	}
	return saved, nil
}

// ProductID: stabilne id produktu dla kodu towaru.
func ProductID(kod string) string {
	return uuid.NewSHA1(productNS, []byte(strings.TrimSpace(kod))).String()
}

func toPatch(t xmlTowar) (model.ProductPatch, bool) {
	kod := strings.TrimSpace(t.Kod)
	name := strings.TrimSpace(t.Nazwa)
	if kod == "" || name == "" || yn(t.DoUsuniecia) {
		return model.ProductPatch{}, false
	}

	id := ProductID(kod)
	qty := 0
	for _, m := range t.Magazyny {
		qty += int(amount(m.Stan).IntPart())
	}
	if qty < 0 {
		qty = 0
	}
	sell := amount(t.CenaDetal)
	buy := amount(t.CenaZakupu)
	if buy.IsZero() {
		buy = amount(t.CenaHurtowa)
	}
	p := model.ProductPatch{
		ID:        &id,
		Name:      &name,
		Quantity:  &qty,
		PriceSell: &sell,
		PriceBuy:  &buy,
	}
	if c := strings.TrimSpace(t.Kategoria); c != "" {
		p.Category = &c
	}
	if n := int(amount(t.Opakowanie).IntPart()); n > 1 {
		pt := model.ProductBoth
		p.UnitsPerPackage = &n
		p.ProductType = &pt
	}
	if n := int(amount(t.StanMin).IntPart()); n > 0 {
		p.MinStock = &n
	}
	if d := strings.TrimSpace(t.DataWazn); len(d) >= 10 {
		if _, err := time.Parse("2006-01-02", d[:10]); err == nil {
			v := d[:10]
			p.ExpiryDate = &v
		}
	}
	return p, true
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func factory(log zerolog.Logger, raw json.RawMessage, deps integrations.Deps) (integrations.Integration, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if deps.DB == nil || deps.Catalog == nil {
		return nil, errors.New("importer: brak bazy lub katalogu w zależnościach")
	}
	if cfg.WatchDir == "" {
		return nil, errors.New("importer: watch_dir jest wymagany")
	}
	return &Importer{log: log, cfg: cfg, db: deps.DB, catalog: deps.Catalog}, nil
}

func init() {
	integrations.Register("importer", factory)
}

// normalizeCharset mapuje nietypowe etykiety na standardowe nazwy rozpoznawane przez charset.NewReaderLabel
func normalizeCharset(cs string) string {
	c := strings.TrimSpace(strings.ToLower(cs))
	switch c {
	case "latin ii", "latin-2", "latin2", "iso8859-2", "iso_8859-2":
		return "iso-8859-2"
	case "cp1250", "windows1250", "win-1250":
		return "windows-1250"
	default:
		return c
	}
}

func yn(s string) bool {
	switch strings.TrimSpace(strings.ToUpper(s)) {
	case "Y", "T", "1", "TAK":
		return true
	default:
		return false
	}
}

// amount: kwoty z eksportu bywają z przecinkiem; śmieci dają zero.
func amount(s string) decimal.Decimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}
