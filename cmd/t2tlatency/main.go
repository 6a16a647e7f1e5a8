// t2tlatency summarizes tick-to-decision latency from a binary capture
// of 64-byte decision records. Percentiles come from the raw samples;
// the histogram is only used for the distribution chart.
//
// Usage:
//
//	t2tlatency -f decisions.bin -bin-width 100
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/rickgao/tick2trade/internal/model"
	"github.com/rickgao/tick2trade/internal/telemetry"
)

func main() {
	file := flag.String("f", "", "binary capture file of 64-byte records")
	binWidth := flag.Uint64("bin-width", telemetry.DefaultBinWidthNs, "histogram bin width in ns")
	bars := flag.Int("bars", 40, "max width of histogram bars")
	skipCorrupt := flag.Bool("skip-corrupt", true, "drop records that fail CRC")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "-f is required")
		os.Exit(2)
	}

	hist := telemetry.NewLatencyHistogram(*binWidth)
	samples, corrupt, err := observeFile(*file, hist, *skipCorrupt)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(samples) == 0 {
		fmt.Println("no samples")
		return
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	mean, stddev := moments(samples)
	fmt.Printf("records   %d (%d corrupt)\n", len(samples)+corrupt, corrupt)
	fmt.Printf("min       %d ns\n", samples[0])
	fmt.Printf("mean      %.1f ns\n", mean)
	fmt.Printf("stddev    %.1f ns\n", stddev)
	for _, p := range []float64{50, 75, 90, 95, 99, 99.9, 99.99} {
		fmt.Printf("p%-8s %d ns\n", trimFloat(p), percentile(samples, p))
	}
	fmt.Printf("max       %d ns\n", samples[len(samples)-1])
	fmt.Println()

	s := hist.Snapshot()
	printHistogram(&s, *bars)
}

func observeFile(path string, hist *telemetry.LatencyHistogram, skipCorrupt bool) (samples []uint64, corrupt int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var frame [model.RecordSize]byte
	total := 0
	for {
		if _, err := io.ReadFull(f, frame[:]); err != nil {
			if err == io.EOF {
				return samples, corrupt, nil
			}
			if err == io.ErrUnexpectedEOF {
				return samples, corrupt, fmt.Errorf("truncated record at offset %d", total*model.RecordSize)
			}
			return samples, corrupt, err
		}
		total++
		if skipCorrupt && !model.VerifyCRC(&frame) {
			corrupt++
			continue
		}
		rec := model.DecodeRecord(&frame)
		lat := rec.LatencyNs()
		samples = append(samples, lat)
		hist.Observe(lat)
	}
}

// percentile returns the nearest-rank percentile of sorted samples.
func percentile(sorted []uint64, p float64) uint64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// moments returns the sample mean and standard deviation.
func moments(samples []uint64) (mean, stddev float64) {
	var sum float64
	for _, v := range samples {
		sum += float64(v)
	}
	mean = sum / float64(len(samples))

	if len(samples) < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range samples {
		d := float64(v) - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(samples)-1))
}

func trimFloat(p float64) string {
	s := fmt.Sprintf("%.2f", p)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// printHistogram renders non-empty bins as proportional bars. Adjacent
// empty bins collapse into a single gap line.
func printHistogram(s *telemetry.LatencySnapshot, maxBars int) {
	var peak uint64
	for _, n := range s.Bins {
		if n > peak {
			peak = n
		}
	}
	if peak == 0 {
		return
	}

	inGap := false
	for i, n := range s.Bins {
		if n == 0 {
			if !inGap {
				fmt.Println("  ...")
				inGap = true
			}
			continue
		}
		inGap = false

		width := int(n * uint64(maxBars) / peak)
		if width == 0 {
			width = 1
		}
		lo := uint64(i) * s.BinWidthNs
		hi := lo + s.BinWidthNs
		label := fmt.Sprintf("%d-%d", lo, hi)
		if i == len(s.Bins)-1 {
			label = fmt.Sprintf("%d+", lo)
		}
		fmt.Printf("%14s ns %s %d\n", label, strings.Repeat("#", width), n)
	}
}
