package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/j-veylop/complyscan/internal/models"
)

func sampleScan(id string) models.Scan {
	return models.Scan{
		StartedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		ID:          id,
		Mode:        models.ModeSmart,
		Status:      models.ScanRunning,
		ProjectPath: "/src/app",
		CostLimit:   0.5,
		FilesTotal:  3,
	}
}

func sampleViolations(scanID string) []models.Violation {
	return []models.Violation{
		{
			ScanID: scanID, ControlID: "CC6.1", Description: "Hardcoded credential",
			FilePath: "auth.go", Line: 12, CodeSnippet: `password := "x"`,
			Method: models.DetectionRegex, RegexReasoning: "pattern", Severity: models.SeverityCritical,
		},
		{
			ScanID: scanID, ControlID: "CC6.6", Description: "SQL injection",
			FilePath: "db.go", Line: 40, Method: models.DetectionHybrid,
			Confidence: models.ClampConfidence(80), LLMReasoning: "model", RegexReasoning: "pattern",
			Severity: models.SeverityHigh,
		},
		{
			ScanID: scanID, ControlID: "CC7.2", Description: "Token logged",
			FilePath: "db.go", Line: 55, Method: models.DetectionLLM,
			Confidence: models.ClampConfidence(60), LLMReasoning: "model", Severity: models.SeverityHigh,
		},
	}
}

func sampleCost(scanID string) models.ScanCostRecord {
	return models.ScanCostRecord{
		ScanID:        scanID,
		FilesAnalyzed: 2,
		Usage:         models.TokenUsage{InputTokens: 10_000, OutputTokens: 2_000, CacheReadTokens: 500, CacheWriteTokens: 100},
		TotalCost:     0.06,
	}
}

func TestUpsertProject(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	p, err := db.UpsertProject(ctx, "", "/src/app")
	if err != nil {
		t.Fatalf("UpsertProject failed: %v", err)
	}
	if p.ID == 0 || p.Name != "app" || p.Path != "/src/app" {
		t.Errorf("unexpected project: %+v", p)
	}

	again, err := db.UpsertProject(ctx, "renamed", "/src/app")
	if err != nil {
		t.Fatalf("second UpsertProject failed: %v", err)
	}
	if again.ID != p.ID || again.Name != "renamed" {
		t.Errorf("expected same project renamed, got %+v", again)
	}
}

func TestScanLifecycle(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	p, err := db.UpsertProject(ctx, "app", "/src/app")
	if err != nil {
		t.Fatalf("UpsertProject failed: %v", err)
	}

	scan := sampleScan("scan-1")
	scan.ProjectID = p.ID
	if err := db.CreateScan(ctx, scan); err != nil {
		t.Fatalf("CreateScan failed: %v", err)
	}

	got, err := db.GetScan(ctx, "scan-1")
	if err != nil {
		t.Fatalf("GetScan failed: %v", err)
	}
	if got.Status != models.ScanRunning || got.ProjectID != p.ID || got.Mode != models.ModeSmart {
		t.Errorf("unexpected scan: %+v", got)
	}
	if !got.StartedAt.Equal(scan.StartedAt) {
		t.Errorf("started at = %v, want %v", got.StartedAt, scan.StartedAt)
	}
	if !got.FinishedAt.IsZero() {
		t.Errorf("running scan should have no finish time, got %v", got.FinishedAt)
	}

	scan.Status = models.ScanAborted
	scan.AbortReason = models.AbortCostLimit
	scan.FilesScanned = 2
	scan.FinishedAt = scan.StartedAt.Add(time.Minute)
	if err := db.FinishScan(ctx, scan); err != nil {
		t.Fatalf("FinishScan failed: %v", err)
	}

	got, err = db.GetScan(ctx, "scan-1")
	if err != nil {
		t.Fatalf("GetScan failed: %v", err)
	}
	if got.Status != models.ScanAborted || got.AbortReason != models.AbortCostLimit || got.FilesScanned != 2 {
		t.Errorf("unexpected finished scan: %+v", got)
	}
	if !got.FinishedAt.Equal(scan.FinishedAt) {
		t.Errorf("finished at = %v, want %v", got.FinishedAt, scan.FinishedAt)
	}
}

func TestGetScan_NotFound(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	if _, err := db.GetScan(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := db.GetScanCost(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertScanCost(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	if err := db.CreateScan(ctx, sampleScan("scan-1")); err != nil {
		t.Fatalf("CreateScan failed: %v", err)
	}

	rec := sampleCost("scan-1")
	if err := db.UpsertScanCost(ctx, rec); err != nil {
		t.Fatalf("UpsertScanCost failed: %v", err)
	}

	rec.FilesAnalyzed = 5
	rec.TotalCost = 0.25
	if err := db.UpsertScanCost(ctx, rec); err != nil {
		t.Fatalf("second UpsertScanCost failed: %v", err)
	}

	got, err := db.GetScanCost(ctx, "scan-1")
	if err != nil {
		t.Fatalf("GetScanCost failed: %v", err)
	}
	if got.FilesAnalyzed != 5 || got.TotalCost != 0.25 || got.Usage != rec.Usage {
		t.Errorf("unexpected cost: %+v", got)
	}
}

func TestUpsertScanCost_RequiresScan(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	if err := db.UpsertScanCost(context.Background(), sampleCost("orphan")); err == nil {
		t.Error("expected foreign key violation for unknown scan")
	}
}

func TestSaveScanResults(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	scan := sampleScan("scan-1")
	if err := db.CreateScan(ctx, scan); err != nil {
		t.Fatalf("CreateScan failed: %v", err)
	}

	scan.Status = models.ScanCompleted
	scan.FilesScanned = 3
	scan.FinishedAt = scan.StartedAt.Add(2 * time.Minute)
	violations := sampleViolations("scan-1")

	if err := db.SaveScanResults(ctx, scan, violations, sampleCost("scan-1")); err != nil {
		t.Fatalf("SaveScanResults failed: %v", err)
	}
	if violations[0].ID == 0 {
		t.Error("expected inserted ids to be written back")
	}

	got, err := db.GetViolations(ctx, "scan-1")
	if err != nil {
		t.Fatalf("GetViolations failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 violations, got %d", len(got))
	}
	if got[0].Confidence != nil || got[0].Severity != models.SeverityCritical {
		t.Errorf("unexpected regex violation: %+v", got[0])
	}
	if got[1].Method != models.DetectionHybrid || got[1].Confidence == nil || *got[1].Confidence != 80 {
		t.Errorf("unexpected hybrid violation: %+v", got[1])
	}
	if got[1].RegexReasoning != "pattern" || got[1].LLMReasoning != "model" {
		t.Errorf("reasoning not round-tripped: %+v", got[1])
	}
	for _, v := range got {
		if v.Status != models.StatusPending {
			t.Errorf("violation %d status = %s, want pending", v.ID, v.Status)
		}
	}

	stored, err := db.GetScan(ctx, "scan-1")
	if err != nil {
		t.Fatalf("GetScan failed: %v", err)
	}
	if stored.Status != models.ScanCompleted || stored.FilesScanned != 3 {
		t.Errorf("scan not finalized: %+v", stored)
	}

	// Saving again replaces rather than duplicates.
	if err := db.SaveScanResults(ctx, scan, violations[:1], sampleCost("scan-1")); err != nil {
		t.Fatalf("second SaveScanResults failed: %v", err)
	}
	got, _ = db.GetViolations(ctx, "scan-1")
	if len(got) != 1 {
		t.Errorf("expected 1 violation after replace, got %d", len(got))
	}
}

func TestSaveScanResults_InvalidViolationRollsBack(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	scan := sampleScan("scan-1")
	if err := db.CreateScan(ctx, scan); err != nil {
		t.Fatalf("CreateScan failed: %v", err)
	}

	bad := sampleViolations("scan-1")
	bad[2].Line = 0

	scan.Status = models.ScanCompleted
	if err := db.SaveScanResults(ctx, scan, bad, sampleCost("scan-1")); err == nil {
		t.Fatal("expected validation error")
	}

	stored, _ := db.GetScan(ctx, "scan-1")
	if stored.Status != models.ScanRunning {
		t.Errorf("scan status changed despite failure: %s", stored.Status)
	}
	if got, _ := db.GetViolations(ctx, "scan-1"); len(got) != 0 {
		t.Errorf("expected no violations, got %d", len(got))
	}
}

func TestListScans(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		s := sampleScan(id)
		s.StartedAt = base.Add(time.Duration(i) * time.Hour)
		if err := db.CreateScan(ctx, s); err != nil {
			t.Fatalf("CreateScan failed: %v", err)
		}
	}

	scans, err := db.ListScans(ctx, 2)
	if err != nil {
		t.Fatalf("ListScans failed: %v", err)
	}
	if len(scans) != 2 || scans[0].ID != "new" || scans[1].ID != "mid" {
		t.Errorf("unexpected scans: %+v", scans)
	}

	all, err := db.ListScans(ctx, 0)
	if err != nil {
		t.Fatalf("ListScans failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 scans, got %d", len(all))
	}
}

func TestUpdateViolationStatus(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	scan := sampleScan("scan-1")
	violations := sampleViolations("scan-1")
	if err := db.SaveScanResults(ctx, scan, violations, sampleCost("scan-1")); err != nil {
		t.Fatalf("SaveScanResults failed: %v", err)
	}
	id := violations[0].ID

	if err := db.UpdateViolationStatus(ctx, id, models.StatusPending); err == nil {
		t.Error("expected error moving to pending")
	}
	if err := db.UpdateViolationStatus(ctx, id, models.StatusDismissed); err != nil {
		t.Fatalf("UpdateViolationStatus failed: %v", err)
	}
	if err := db.UpdateViolationStatus(ctx, id, models.StatusFixed); err == nil {
		t.Error("expected error on non-pending violation")
	}
	if err := db.UpdateViolationStatus(ctx, 99999, models.StatusFixed); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	got, _ := db.GetViolations(ctx, "scan-1")
	if got[0].Status != models.StatusDismissed {
		t.Errorf("status = %s, want dismissed", got[0].Status)
	}
}

func TestDeleteScan_Cascades(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	scan := sampleScan("scan-1")
	if err := db.SaveScanResults(ctx, scan, sampleViolations("scan-1"), sampleCost("scan-1")); err != nil {
		t.Fatalf("SaveScanResults failed: %v", err)
	}

	if err := db.DeleteScan(ctx, "scan-1"); err != nil {
		t.Fatalf("DeleteScan failed: %v", err)
	}

	if got, _ := db.GetViolations(ctx, "scan-1"); len(got) != 0 {
		t.Errorf("expected violations to cascade, got %d", len(got))
	}
	if _, err := db.GetScanCost(ctx, "scan-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected cost to cascade, got %v", err)
	}
	if err := db.DeleteScan(ctx, "scan-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestViolationCounts(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	if err := db.SaveScanResults(ctx, sampleScan("scan-1"), sampleViolations("scan-1"), sampleCost("scan-1")); err != nil {
		t.Fatalf("SaveScanResults failed: %v", err)
	}

	counts, err := db.ViolationCounts(ctx, "scan-1")
	if err != nil {
		t.Fatalf("ViolationCounts failed: %v", err)
	}
	if counts[models.SeverityCritical] != 1 || counts[models.SeverityHigh] != 2 || counts[models.SeverityLow] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
