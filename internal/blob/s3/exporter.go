package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/yesnolabs/venue/internal/domain"
)

// OrderExporter implements domain.AuditExporter by streaming filled orders
// to cold storage as JSONL batches. A cursor object at {prefix}/_cursor
// records the last exported order ID so the export resumes where it left
// off across restarts.
type OrderExporter struct {
	orders    domain.OrderStore
	writer    domain.BlobWriter
	reader    domain.BlobReader
	prefix    string
	batchSize int
	logger    *slog.Logger

	// Batches at or above this size upload via multipart.
	multipartThreshold int64
}

// NewOrderExporter creates an OrderExporter writing under the given prefix.
func NewOrderExporter(orders domain.OrderStore, writer domain.BlobWriter, reader domain.BlobReader, prefix string, batchSize int, logger *slog.Logger) *OrderExporter {
	if prefix == "" {
		prefix = "orders"
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &OrderExporter{
		orders:             orders,
		writer:             writer,
		reader:             reader,
		prefix:             prefix,
		batchSize:          batchSize,
		logger:             logger.With(slog.String("component", "audit")),
		multipartThreshold: minPartSize,
	}
}

func (e *OrderExporter) cursorPath() string {
	return e.prefix + "/_cursor"
}

// ExportOrders uploads every filled order not yet exported and returns the
// number of records written. Batches land at
// {prefix}/YYYY/MM/DD/{firstOrderID}.jsonl.
func (e *OrderExporter) ExportOrders(ctx context.Context) (int64, error) {
	cursor, err := e.loadCursor(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for {
		batch, err := e.orders.ListFilledSince(ctx, cursor, e.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: export orders query: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: export orders marshal: %w", err)
		}

		path := fmt.Sprintf("%s/%s/%s.jsonl",
			e.prefix, time.Now().UTC().Format("2006/01/02"), batch[0].ID)
		if err := e.upload(ctx, path, buf); err != nil {
			return total, fmt.Errorf("s3blob: export orders upload: %w", err)
		}

		cursor = batch[len(batch)-1].ID
		if err := e.saveCursor(ctx, cursor); err != nil {
			return total, err
		}
		total += int64(len(batch))

		e.logger.InfoContext(ctx, "audit: exported order batch",
			slog.String("path", path),
			slog.Int("count", len(batch)),
		)

		if len(batch) < e.batchSize {
			return total, nil
		}
	}
}

// upload picks the transfer path by payload size: small batches go out as a
// single PutObject, anything at or above the multipart threshold goes through
// the concurrent multipart uploader.
func (e *OrderExporter) upload(ctx context.Context, path string, buf []byte) error {
	if int64(len(buf)) >= e.multipartThreshold {
		return e.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return e.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

func (e *OrderExporter) loadCursor(ctx context.Context) (string, error) {
	rc, err := e.reader.Get(ctx, e.cursorPath())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("s3blob: load export cursor: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("s3blob: read export cursor: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (e *OrderExporter) saveCursor(ctx context.Context, cursor string) error {
	if err := e.writer.Put(ctx, e.cursorPath(), strings.NewReader(cursor), "text/plain"); err != nil {
		return fmt.Errorf("s3blob: save export cursor: %w", err)
	}
	return nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.AuditExporter = (*OrderExporter)(nil)
