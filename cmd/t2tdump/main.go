// t2tdump decodes 64-byte decision records and prints them as text.
// It reads a binary capture file or subscribes to the live NATS
// subject the engine publishes on.
//
// Usage:
//
//	t2tdump -f decisions.bin -n 100
//	t2tdump -nats nats://localhost:4222 -subject t2t.decisions
//	t2tdump -nats nats://localhost:4222 -t 30s -o decisions.bin -q
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rickgao/tick2trade/internal/model"
	"github.com/rickgao/tick2trade/internal/sink"
	"github.com/rickgao/tick2trade/internal/telemetry"
)

func main() {
	file := flag.String("f", "", "binary capture file of 64-byte records")
	natsURL := flag.String("nats", "", "NATS server URL for live records")
	subject := flag.String("subject", "t2t.decisions", "NATS subject")
	maxRecords := flag.Int("n", 0, "stop after this many records (0 = all)")
	maxDuration := flag.Duration("t", 0, "stop after this long on NATS (0 = until interrupted)")
	verify := flag.Bool("verify", true, "check each record's CRC")
	quiet := flag.Bool("q", false, "suppress per-record lines, print only the summary")
	acceptedOnly := flag.Bool("accepted", false, "print only accepted records")
	outPath := flag.String("o", "", "also write matching records as raw 64-byte binary")
	csvPath := flag.String("csv", "", "also write matching records as CSV")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	if (*file == "") == (*natsURL == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -f or -nats is required")
		os.Exit(2)
	}

	d := &dumper{
		verify:       *verify,
		quiet:        *quiet,
		acceptedOnly: *acceptedOnly,
		maxRecords:   *maxRecords,
	}
	if *outPath != "" {
		out, err := os.Create(*outPath)
		if err != nil {
			logger.Error("failed to open output", "error", err)
			os.Exit(1)
		}
		defer out.Close()
		d.out = out
	}
	if *csvPath != "" {
		cw, err := sink.NewCSVPublisher(*csvPath)
		if err != nil {
			logger.Error("failed to open csv output", "error", err)
			os.Exit(1)
		}
		defer cw.Close()
		d.csv = cw
	}

	var err error
	if *file != "" {
		err = d.dumpFile(*file)
	} else {
		err = d.dumpNATS(*natsURL, *subject, *maxDuration, logger)
	}
	if err != nil {
		logger.Error("dump failed", "error", err)
		os.Exit(1)
	}

	d.summary()
}

type dumper struct {
	verify       bool
	quiet        bool
	acceptedOnly bool
	maxRecords   int
	out          *os.File
	csv          *sink.CSVPublisher

	printed  int
	total    int
	accepted int
	corrupt  int
	written  int
}

func (d *dumper) dumpFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var frame [model.RecordSize]byte
	for d.maxRecords == 0 || d.total < d.maxRecords {
		if _, err := io.ReadFull(f, frame[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			if err == io.ErrUnexpectedEOF {
				return fmt.Errorf("truncated record at offset %d", d.total*model.RecordSize)
			}
			return err
		}
		d.handle(&frame)
	}
	return nil
}

func (d *dumper) dumpNATS(url, subject string, maxDuration time.Duration, logger *slog.Logger) error {
	nc, err := nats.Connect(url)
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", url, err)
	}
	defer nc.Close()

	done := make(chan struct{})
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		if len(msg.Data) != model.RecordSize {
			logger.Warn("unexpected message size", "bytes", len(msg.Data))
			return
		}
		var frame [model.RecordSize]byte
		copy(frame[:], msg.Data)
		d.handle(&frame)
		if d.maxRecords > 0 && d.total >= d.maxRecords {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer sub.Unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var timeout <-chan time.Time
	if maxDuration > 0 {
		timer := time.NewTimer(maxDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-sigCh:
	case <-done:
	case <-timeout:
	}
	return nil
}

func (d *dumper) handle(frame *[model.RecordSize]byte) {
	d.total++

	if d.verify && !model.VerifyCRC(frame) {
		d.corrupt++
		if !d.quiet {
			fmt.Printf("#%-8d CRC MISMATCH\n", d.total)
		}
		return
	}

	rec := model.DecodeRecord(frame)
	if rec.Accepted() {
		d.accepted++
	}
	if d.acceptedOnly && !rec.Accepted() {
		return
	}
	if d.out != nil {
		if _, err := d.out.Write(frame[:]); err != nil {
			fmt.Fprintln(os.Stderr, "write failed:", err)
			os.Exit(1)
		}
		d.written++
	}
	if d.csv != nil {
		if err := d.csv.Publish([]model.DecisionRecord{rec}); err != nil {
			fmt.Fprintln(os.Stderr, "csv write failed:", err)
			os.Exit(1)
		}
	}
	if d.quiet {
		return
	}

	fmt.Printf("seq=%-10d sym=%-5d side=%-3s %-6s flags=%s qty=%-8d px=%-10d ref=%-10d spread=%-8d imb=%-8d last=%-10d lat=%dns\n",
		rec.Seq,
		rec.SymbolIndex,
		rec.Side,
		verdict(&rec),
		flagString(rec.Flags),
		rec.Qty,
		rec.Price,
		rec.RefPrice,
		rec.Feature0,
		rec.Feature1,
		rec.Feature2,
		rec.LatencyNs(),
	)
	d.printed++
}

func (d *dumper) summary() {
	fmt.Printf("\n%d records, %d accepted, %d rejected, %d corrupt\n",
		d.total, d.accepted, d.total-d.accepted-d.corrupt, d.corrupt)
	if d.out != nil {
		fmt.Printf("%d records written to %s\n", d.written, d.out.Name())
	}
}

func verdict(rec *model.DecisionRecord) string {
	if rec.Accepted() {
		return "ACCEPT"
	}
	return "REJECT"
}

// flagString renders the flag byte as a compact reason list, in gate
// priority order.
func flagString(flags uint8) string {
	if flags == model.FlagAccept {
		return "accept"
	}
	reasons := []struct {
		bit  uint8
		name string
	}{
		{model.FlagKill, telemetry.RejectReasonName(telemetry.RejectKill)},
		{model.FlagStale, telemetry.RejectReasonName(telemetry.RejectStale)},
		{model.FlagPriceBand, telemetry.RejectReasonName(telemetry.RejectPriceBand)},
		{model.FlagToken, telemetry.RejectReasonName(telemetry.RejectToken)},
		{model.FlagPosition, telemetry.RejectReasonName(telemetry.RejectPosition)},
	}
	out := ""
	for _, r := range reasons {
		if flags&r.bit == 0 {
			continue
		}
		if out != "" {
			out += ","
		}
		out += r.name
	}
	if out == "" {
		return "none"
	}
	return out
}
