package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/on-the-ground/reactive_ive_go/config"
	"github.com/on-the-ground/reactive_ive_go/store"
	"github.com/on-the-ground/reactive_ive_go/stream"
)

// runBench builds width chains of height derived queries over one store,
// subscribes to the end of every chain and times each commit until every
// chain has observed it.
func runBench(out io.Writer, cfg config.Bench) error {
	tbl := table.NewWriter()
	tbl.SetTitle("Query propagation")
	tbl.SetOutputMirror(out)
	tbl.AppendHeader(table.Row{"benchmark", "commits", "notifications", "avg", "min", "p75", "p99", "max"})

	for _, shape := range benchShapes(cfg) {
		tach := tachymeter.New(&tachymeter.Config{Size: cfg.Iterations})
		src := store.New(0)

		var notified int
		subs := &stream.Subscriptions{}
		for range shape.width {
			var last store.Query[int] = src
			for range shape.height {
				last = store.MustMap(last, func(v int) int { return v + 1 })
			}
			subs.Add(last.Subscribe(stream.OnNext(func(int) { notified++ })))
		}
		notified = 0

		for range cfg.Iterations {
			start := time.Now()
			src.Update(func(v int) int { return v + 1 })
			tach.AddTime(time.Since(start))
		}
		subs.Unsubscribe()
		src.Destroy()

		if want := shape.width * cfg.Iterations; notified != want {
			return fmt.Errorf("propagate %d * %d: %d notifications, want %d", shape.width, shape.height, notified, want)
		}

		calc := tach.Calc()
		tbl.AppendRow(table.Row{
			fmt.Sprintf("propagate: %d * %d", shape.width, shape.height),
			humanize.Comma(int64(cfg.Iterations)),
			humanize.Comma(int64(notified)),
			calc.Time.Avg,
			calc.Time.Min,
			calc.Time.P75,
			calc.Time.P99,
			calc.Time.Max,
		})
	}

	tbl.Render()
	return nil
}

type benchShape struct {
	width, height int
}

// benchShapes grows each dimension by powers of ten up to the configured
// size, as in the signal benchmarks this command is modelled on.
func benchShapes(cfg config.Bench) []benchShape {
	var shapes []benchShape
	for w := 1; ; w *= 10 {
		if w > cfg.Width {
			w = cfg.Width
		}
		for h := 1; ; h *= 10 {
			if h > cfg.Height {
				h = cfg.Height
			}
			shapes = append(shapes, benchShape{width: w, height: h})
			if h == cfg.Height {
				break
			}
		}
		if w == cfg.Width {
			break
		}
	}
	return shapes
}
