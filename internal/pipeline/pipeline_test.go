package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/dharsanguruparan/pricedrop/internal/model"
	"github.com/dharsanguruparan/pricedrop/internal/pricing"
	"github.com/dharsanguruparan/pricedrop/internal/sheet"
)

type memorySink struct {
	batches [][]model.NormalizedProduct
	failAll bool
	err     error
}

func (m *memorySink) SaveBatch(_ context.Context, _ string, batch []model.NormalizedProduct) error {
	if m.failAll {
		if m.err == nil {
			m.err = errors.New("connection refused")
		}
		return m.err
	}
	m.batches = append(m.batches, batch)
	return nil
}

func (m *memorySink) saved() int {
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

type memoryStore struct {
	snapshots []model.Progress
	completed *model.Result
	failedMsg string
}

func (m *memoryStore) UpdateProgress(_ context.Context, _ string, p model.Progress) error {
	m.snapshots = append(m.snapshots, p)
	return nil
}

func (m *memoryStore) Complete(_ context.Context, _ string, p model.Progress, result model.Result) error {
	m.snapshots = append(m.snapshots, p)
	m.completed = &result
	return nil
}

func (m *memoryStore) Fail(_ context.Context, _ string, p model.Progress, _ *model.Result, reason string) error {
	m.snapshots = append(m.snapshots, p)
	m.failedMsg = reason
	return nil
}

func testGrid(dataRows int) (sheet.Grid, *model.StructureReport) {
	grid := sheet.Grid{{"YEALINK", "Code", "Price"}}
	for i := 0; i < dataRows; i++ {
		grid = append(grid, []string{"", "T31P", "899.00"})
	}
	report := &model.StructureReport{
		Layout:       model.LayoutVerticalSingleBrand,
		Brands:       []string{"YEALINK"},
		DataStartRow: 1,
		Columns: []model.BrandColumns{{
			Brand: "YEALINK", StartCol: 0, EndCol: 2, CodeCol: 1, PriceCol: 2, DescCol: -1,
		}},
	}
	return grid, report
}

func testConfig(batch int) model.PricingConfig {
	cfg := pricing.Defaults()
	cfg.BatchSize = batch
	return cfg
}

func TestProcessCompletes(t *testing.T) {
	grid, report := testGrid(25)
	sink := &memorySink{}
	store := &memoryStore{}

	result, err := NewRunner(sink, store).Process(context.Background(), "s1", grid, report, testConfig(10))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.TotalProcessed != 25 || result.SuccessfullySaved != 25 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 25/25/0", result)
	}
	if sink.saved() != 25 {
		t.Errorf("sink holds %d products, want 25", sink.saved())
	}
	if len(sink.batches) != 3 {
		t.Errorf("batches = %d, want 3 for 25 rows at size 10", len(sink.batches))
	}
	if store.completed == nil {
		t.Fatal("Complete was never called")
	}

	last := store.snapshots[len(store.snapshots)-1]
	if last.Stage != model.StageCompleted || last.Percent != 100 {
		t.Errorf("final snapshot = %+v, want completed at 100%%", last)
	}
}

func TestProgressMonotonic(t *testing.T) {
	grid, report := testGrid(50)
	store := &memoryStore{}

	if _, err := NewRunner(&memorySink{}, store).Process(context.Background(), "s1", grid, report, testConfig(7)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	prev := -1.0
	for i, p := range store.snapshots {
		if p.Percent < prev {
			t.Fatalf("snapshot %d: percent %.2f dropped below %.2f", i, p.Percent, prev)
		}
		if p.Percent < 0 || p.Percent > 100 {
			t.Fatalf("snapshot %d: percent %.2f outside [0,100]", i, p.Percent)
		}
		prev = p.Percent
	}
}

func TestProcessNoReadyBrands(t *testing.T) {
	grid, report := testGrid(5)
	// Break the column map: brand present, price column never resolved.
	report.Columns[0].PriceCol = -1
	store := &memoryStore{}

	_, err := NewRunner(&memorySink{}, store).Process(context.Background(), "s1", grid, report, testConfig(10))
	if !errors.Is(err, ErrNoExtractableBrands) {
		t.Fatalf("err = %v, want ErrNoExtractableBrands", err)
	}
	if store.failedMsg == "" {
		t.Error("session failure was not recorded")
	}
	for _, p := range store.snapshots {
		if p.Stage == model.StageSaving || p.Stage == model.StageCompleted {
			t.Errorf("session reached stage %s with no extractable brands", p.Stage)
		}
	}
}

func TestSkipInvalidPrices(t *testing.T) {
	grid := sheet.Grid{
		{"YEALINK", "Code", "Price"},
		{"", "T31P", "899.00"},
		{"", "T33G", "P.O.R"},
		{"", "W73P", "not-a-price"},
	}
	report := &model.StructureReport{
		DataStartRow: 1,
		Columns:      []model.BrandColumns{{Brand: "YEALINK", CodeCol: 1, PriceCol: 2, DescCol: -1}},
	}

	// skip=true: the P.O.R row is excluded from saved but counted in total;
	// the unparseable row is failed.
	cfg := testConfig(10)
	cfg.SkipInvalidPrices = true
	sink := &memorySink{}
	result, err := NewRunner(sink, &memoryStore{}).Process(context.Background(), "s1", grid, report, cfg)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.TotalProcessed != 3 || result.SuccessfullySaved != 1 || result.Failed != 1 {
		t.Fatalf("skip=true: result = %+v, want 3/1/1", result)
	}

	// skip=false: both the P.O.R row and the unparseable row are retained as
	// non-priceable products, but the unparseable one still counts as failed.
	cfg.SkipInvalidPrices = false
	sink = &memorySink{}
	result, err = NewRunner(sink, &memoryStore{}).Process(context.Background(), "s2", grid, report, cfg)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.TotalProcessed != 3 || result.SuccessfullySaved != 3 || result.Failed != 1 {
		t.Fatalf("skip=false: result = %+v, want 3/3/1", result)
	}
	nonPriceable := 0
	for _, b := range sink.batches {
		for _, p := range b {
			if !p.Priceable {
				if p.PriceExclVAT != nil || p.RetailPrice != nil {
					t.Errorf("non-priceable product carries price fields: %+v", p)
				}
				nonPriceable++
			}
		}
	}
	if nonPriceable != 2 {
		t.Errorf("non-priceable products = %d, want 2", nonPriceable)
	}
}

func TestRequirePrice(t *testing.T) {
	grid := sheet.Grid{
		{"YEALINK", "Code", "Price"},
		{"", "T31P", "899.00"},
		{"", "T33G", "P.O.R"},
	}
	report := &model.StructureReport{
		DataStartRow: 1,
		Columns:      []model.BrandColumns{{Brand: "YEALINK", CodeCol: 1, PriceCol: 2, DescCol: -1}},
	}
	cfg := testConfig(10)
	cfg.RequirePrice = true

	result, err := NewRunner(&memorySink{}, &memoryStore{}).Process(context.Background(), "s1", grid, report, cfg)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.TotalProcessed != 2 || result.SuccessfullySaved != 1 || result.Failed != 1 {
		t.Fatalf("result = %+v, want 2/1/1", result)
	}
}

func TestPriceBounds(t *testing.T) {
	grid := sheet.Grid{
		{"YEALINK", "Code", "Price"},
		{"", "T31P", "899.00"},
		{"", "T33G", "2000000.00"},
	}
	report := &model.StructureReport{
		DataStartRow: 1,
		Columns:      []model.BrandColumns{{Brand: "YEALINK", CodeCol: 1, PriceCol: 2, DescCol: -1}},
	}

	result, err := NewRunner(&memorySink{}, &memoryStore{}).Process(context.Background(), "s1", grid, report, testConfig(10))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.SuccessfullySaved != 1 || result.Failed != 1 {
		t.Fatalf("result = %+v, want one saved and one out-of-bounds failure", result)
	}
}

func TestSystemicSaveFailure(t *testing.T) {
	grid, report := testGrid(20)
	sink := &memorySink{failAll: true}
	store := &memoryStore{}

	result, err := NewRunner(sink, store).Process(context.Background(), "s1", grid, report, testConfig(10))
	if err == nil {
		t.Fatal("expected session-level error when every batch fails to persist")
	}
	if store.failedMsg == "" {
		t.Error("failure was not recorded on the session")
	}
	if result.TotalProcessed != 20 || result.SuccessfullySaved != 0 || result.Failed != 20 {
		t.Errorf("partial result = %+v, want 20/0/20", result)
	}
}

func TestCancellationBetweenBatches(t *testing.T) {
	grid, report := testGrid(30)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &memoryStore{}

	_, err := NewRunner(&memorySink{}, store).Process(ctx, "s1", grid, report, testConfig(10))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if store.failedMsg == "" {
		t.Error("cancellation was not recorded as session failure")
	}
	if store.completed != nil {
		t.Error("cancelled session must not complete")
	}
}
