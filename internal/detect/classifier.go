package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dharsanguruparan/pricedrop/internal/model"
	"github.com/dharsanguruparan/pricedrop/internal/sheet"
)

// Classifier produces a structure report for a loaded grid. The heuristic
// implementation is deterministic and always available; remote classifiers
// are an enhancement, never required for correctness.
type Classifier interface {
	Classify(ctx context.Context, grid sheet.Grid) (*model.StructureReport, error)
}

// Remote delegates classification to an external model endpoint and falls
// back to the wrapped classifier when the call fails or the response is not
// usable.
type Remote struct {
	endpoint string
	client   *http.Client
	fallback Classifier
	maxRows  int
}

// NewRemote builds a remote classifier. fallback must not be nil.
func NewRemote(endpoint string, timeout time.Duration, fallback Classifier) *Remote {
	return &Remote{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		fallback: fallback,
		maxRows:  40,
	}
}

type remoteRequest struct {
	Rows [][]string `json:"rows"`
}

// Classify posts a bounded slice of the grid to the endpoint and expects a
// StructureReport back.
func (r *Remote) Classify(ctx context.Context, grid sheet.Grid) (*model.StructureReport, error) {
	report, err := r.classifyRemote(ctx, grid)
	if err != nil {
		log.Printf("remote classifier unavailable, using heuristic: %v", err)
		return r.fallback.Classify(ctx, grid)
	}
	return report, nil
}

func (r *Remote) classifyRemote(ctx context.Context, grid sheet.Grid) (*model.StructureReport, error) {
	rows := grid
	if len(rows) > r.maxRows {
		rows = rows[:r.maxRows]
	}
	body, err := json.Marshal(remoteRequest{Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call classifier: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned %d", resp.StatusCode)
	}
	var report model.StructureReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if report.Layout == "" || len(report.ReadyBrands()) == 0 {
		return nil, fmt.Errorf("classifier produced no usable column maps")
	}
	report.TotalRows = len(grid)
	return &report, nil
}
