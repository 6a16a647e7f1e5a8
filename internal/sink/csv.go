package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/rickgao/tick2trade/internal/model"
)

var csvHeader = []string{
	"seq", "ts_ingress", "ts_decision", "latency_ns",
	"symbol_index", "side", "flags", "accepted",
	"qty", "price", "ref_price",
	"spread", "imbalance", "last_trade_px",
}

// CSVPublisher appends decoded records to a CSV file.
type CSVPublisher struct {
	f *os.File
	w *csv.Writer
}

// NewCSVPublisher opens (or creates) the file and writes the header
// when the file is empty.
func NewCSVPublisher(path string) (*CSVPublisher, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	p := &CSVPublisher{f: f, w: csv.NewWriter(f)}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := p.w.Write(csvHeader); err != nil {
			f.Close()
			return nil, err
		}
	}
	return p, nil
}

// Publish appends the batch and flushes the file.
func (p *CSVPublisher) Publish(recs []model.DecisionRecord) error {
	for i := range recs {
		r := &recs[i]
		row := []string{
			strconv.FormatUint(uint64(r.Seq), 10),
			strconv.FormatUint(r.TsIngress, 10),
			strconv.FormatUint(r.TsDecision, 10),
			strconv.FormatUint(r.LatencyNs(), 10),
			strconv.FormatUint(uint64(r.SymbolIndex), 10),
			r.Side.String(),
			strconv.FormatUint(uint64(r.Flags), 10),
			strconv.FormatBool(r.Accepted()),
			strconv.FormatUint(uint64(r.Qty), 10),
			strconv.FormatUint(uint64(r.Price), 10),
			strconv.FormatUint(uint64(r.RefPrice), 10),
			strconv.FormatUint(uint64(r.Feature0), 10),
			strconv.FormatInt(int64(r.Feature1), 10),
			strconv.FormatUint(uint64(r.Feature2), 10),
		}
		if err := p.w.Write(row); err != nil {
			return err
		}
	}
	p.w.Flush()
	return p.w.Error()
}

// Close flushes and closes the file.
func (p *CSVPublisher) Close() error {
	p.w.Flush()
	if err := p.w.Error(); err != nil {
		p.f.Close()
		return err
	}
	return p.f.Close()
}
