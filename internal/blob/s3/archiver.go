package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arbalert/arbalert/internal/domain"
)

// AuditArchiver uploads per-cycle audit artefacts: the raw quote snapshot a
// detection ran against, and the stake plans that backed each alert. The
// archive is evidence for post-hoc review of why an alert fired; it is never
// read back by the pipeline itself.
type AuditArchiver struct {
	writer domain.BlobWriter
}

// NewAuditArchiver creates a new AuditArchiver.
func NewAuditArchiver(writer domain.BlobWriter) *AuditArchiver {
	return &AuditArchiver{writer: writer}
}

// ArchiveQuotes uploads the cycle's full quote snapshot as JSONL at
// audit/quotes/YYYY-MM-DD/{cycleID}.jsonl. Snapshots can run to thousands of
// lines per cycle, so they go through the multipart uploader.
func (a *AuditArchiver) ArchiveQuotes(ctx context.Context, cycleID string, at time.Time, quotes []domain.OddsQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	buf, err := marshalJSONL(quotes)
	if err != nil {
		return fmt.Errorf("s3blob: archive quotes marshal: %w", err)
	}

	path := auditPath("quotes", cycleID, at)
	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize); err != nil {
		return fmt.Errorf("s3blob: archive quotes upload: %w", err)
	}
	return nil
}

// ArchiveStakePlans uploads the stake plans computed during a cycle as JSONL
// at audit/plans/YYYY-MM-DD/{cycleID}.jsonl.
func (a *AuditArchiver) ArchiveStakePlans(ctx context.Context, cycleID string, at time.Time, plans []domain.StakePlan) error {
	if len(plans) == 0 {
		return nil
	}

	buf, err := marshalJSONL(plans)
	if err != nil {
		return fmt.Errorf("s3blob: archive stake plans marshal: %w", err)
	}

	path := auditPath("plans", cycleID, at)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive stake plans upload: %w", err)
	}
	return nil
}

// auditPath builds the S3 key for a cycle artefact, partitioned by calendar
// date.
//
//	audit/quotes/2025-11-02/{cycleID}.jsonl
//	audit/plans/2025-11-02/{cycleID}.jsonl
func auditPath(kind, cycleID string, at time.Time) string {
	return fmt.Sprintf("audit/%s/%s/%s.jsonl", kind, at.Format("2006-01-02"), cycleID)
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
