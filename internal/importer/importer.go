package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	"storefront/internal/filter"
	"storefront/internal/logging"
)

// CatalogWriter stores imported products and collections.
type CatalogWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpsertCollection(ctx context.Context, c domain.Collection, productHandles []string) (*domain.Collection, error)
}

// Kind is the type of CSV file being imported.
type Kind string

const (
	KindProducts    Kind = "products"
	KindCollections Kind = "collections"
)

// CSVImporter reads storefront catalog exports and upserts them.
//
// Product files hold one row per variant. A row with a handle starts a new
// product; rows with an empty handle add variants or images to it.
type CSVImporter struct {
	reader   *csv.Reader
	catalog  CatalogWriter
	currency string
	logger   logrus.FieldLogger
}

func NewCSVImporter(r io.Reader, catalog CatalogWriter, currency string, logger logrus.FieldLogger) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	if currency == "" {
		currency = "USD"
	}
	return &CSVImporter{
		reader:   csvr,
		catalog:  catalog,
		currency: currency,
		logger:   logging.OrDiscard(logger),
	}
}

// DetectKind peeks at the header row.
func DetectKind(r io.Reader) (Kind, error) {
	headers, err := csv.NewReader(r).Read()
	if err != nil {
		return "", fmt.Errorf("read headers: %w", err)
	}
	idx := headerIndex(headers)
	if _, ok := idx["variant.sku"]; ok {
		return KindProducts, nil
	}
	if _, ok := idx["products"]; ok {
		return KindCollections, nil
	}
	return "", errors.New("unrecognized csv header")
}

// Run imports every row and returns the number of products or collections
// written.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["variant.sku"]; ok {
		return i.runProducts(ctx, index)
	}
	if _, ok := index["products"]; ok {
		return i.runCollections(ctx, index)
	}
	return 0, errors.New("unrecognized csv header")
}

func (i *CSVImporter) runProducts(ctx context.Context, index map[string]int) (int, error) {
	var (
		current     *domain.Product
		imported    int
		collections = map[string][]string{}
		line        = 1
	)

	flush := func() error {
		if current == nil {
			return nil
		}
		if err := i.save(ctx, current); err != nil {
			return err
		}
		imported++
		return nil
	}

	for {
		record, err := i.reader.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}

		handle := pick(record, index, "handle")
		if handle != "" {
			if err := flush(); err != nil {
				return imported, err
			}
			current = &domain.Product{
				Handle:          handle,
				Title:           pick(record, index, "title"),
				Description:     pick(record, index, "description"),
				Vendor:          pick(record, index, "vendor"),
				Tags:            splitList(pick(record, index, "tags")),
				BestSellingRank: atoi(pick(record, index, "rank")),
			}
			for _, col := range splitList(pick(record, index, "collections")) {
				collections[col] = append(collections[col], handle)
			}
		}
		if current == nil {
			i.logger.WithField("line", line).Warn("skipping row without a product")
			continue
		}

		if img := pick(record, index, "image.url"); img != "" {
			current.Images = append(current.Images, img)
		}
		if sku := pick(record, index, "variant.sku"); sku != "" {
			v, err := i.variant(record, index, sku)
			if err != nil {
				return imported, fmt.Errorf("line %d: %w", line, err)
			}
			current.Variants = append(current.Variants, v)
		}
	}
	if err := flush(); err != nil {
		return imported, err
	}

	handles := make([]string, 0, len(collections))
	for h := range collections {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	for _, h := range handles {
		col := domain.Collection{Handle: h, Title: filter.Titleify(h)}
		if _, err := i.catalog.UpsertCollection(ctx, col, collections[h]); err != nil {
			return imported, fmt.Errorf("upsert collection %q: %w", h, err)
		}
	}
	return imported, nil
}

func (i *CSVImporter) runCollections(ctx context.Context, index map[string]int) (int, error) {
	imported := 0
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			return imported, nil
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}
		handle := pick(record, index, "handle")
		if handle == "" {
			continue
		}
		title := pick(record, index, "title")
		if title == "" {
			title = filter.Titleify(handle)
		}
		col := domain.Collection{Handle: handle, Title: title}
		if _, err := i.catalog.UpsertCollection(ctx, col, splitList(pick(record, index, "products"))); err != nil {
			return imported, fmt.Errorf("upsert collection %q: %w", handle, err)
		}
		imported++
	}
}

func (i *CSVImporter) variant(record []string, index map[string]int, sku string) (domain.Variant, error) {
	raw := pick(record, index, "variant.price")
	price, err := decimal.NewFromString(raw)
	if err != nil || price.IsNegative() {
		return domain.Variant{}, fmt.Errorf("invalid price %q for sku %s", raw, sku)
	}
	currency := pick(record, index, "variant.currency")
	if currency == "" {
		currency = i.currency
	}
	available := true
	if s := pick(record, index, "variant.available"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			available = b
		}
	}
	title := pick(record, index, "variant.title")
	if title == "" {
		title = "Default Title"
	}
	return domain.Variant{
		Title:            title,
		SKU:              sku,
		Price:            domain.Money{Amount: price.Round(2), CurrencyCode: currency},
		AvailableForSale: available,
	}, nil
}

func (i *CSVImporter) save(ctx context.Context, p *domain.Product) error {
	if p.Title == "" || len(p.Variants) == 0 {
		return fmt.Errorf("invalid product row (missing required fields) for handle %q", p.Handle)
	}
	if _, err := i.catalog.Upsert(ctx, *p); err != nil {
		return fmt.Errorf("upsert product %q: %w", p.Handle, err)
	}
	return nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
