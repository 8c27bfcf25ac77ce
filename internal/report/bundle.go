package report

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"biomark/domain/prediction"
)

// BundleEntry names one file in the export archive
type BundleEntry struct {
	Name string
	Size int
}

// WriteBundle renders every export format concurrently and writes them into a
// single zip archive in a fixed order
func WriteBundle(ctx context.Context, w io.Writer, doc Document, events []prediction.Event, opts PDFOptions) ([]BundleEntry, error) {
	type part struct {
		name   string
		render func(io.Writer) error
		buf    bytes.Buffer
	}
	parts := []*part{
		{name: "report.json", render: func(w io.Writer) error { return WriteReportJSON(w, doc) }},
		{name: "report.pdf", render: func(w io.Writer) error { _, err := WriteReportPDF(w, doc, opts); return err }},
		{name: "history.csv", render: func(w io.Writer) error { return WriteHistoryCSV(w, events) }},
		{name: "history.xlsx", render: func(w io.Writer) error { return WriteHistoryXLSX(w, events) }},
	}
	if len(opts.Heatmap) > 0 {
		parts = append(parts, &part{name: "heatmap.png", render: func(w io.Writer) error {
			_, err := w.Write(opts.Heatmap)
			return err
		}})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range parts {
		p := p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := p.render(&p.buf); err != nil {
				return fmt.Errorf("render %s: %w", p.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	zw := zip.NewWriter(w)
	modified := doc.AnalysisDate.Time()
	if modified.IsZero() {
		modified = time.Unix(0, 0)
	}
	entries := make([]BundleEntry, 0, len(parts))
	for _, p := range parts {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(p.buf.Bytes()); err != nil {
			return nil, err
		}
		entries = append(entries, BundleEntry{Name: p.name, Size: p.buf.Len()})
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return entries, nil
}
