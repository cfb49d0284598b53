package homepulse

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func sampleAnalysis(at time.Time) *AnalysisResult {
	return &AnalysisResult{
		GeneratedAt:          at,
		AutomationEfficiency: 75,
		UsagePatterns: []UsagePattern{
			{EntityID: "light.kitchen", Name: "Kitchen", Domain: DomainLight, TotalUsageHours: 8},
		},
		Recommendations: []Recommendation{
			{ID: "overactive:switch.pump", Type: "overactive_device", Priority: 80},
		},
		Summary: AnalysisSummary{DevicesAnalyzed: 1, Recommendations: 1},
	}
}

func TestMemorySnapshotBackend(t *testing.T) {
	ctx := context.Background()
	b := NewMemorySnapshotBackend()

	if _, err := b.Read(ctx, "missing"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Read(missing) err = %v, want ErrSnapshotNotFound", err)
	}

	if err := b.Write(ctx, "analysis/a", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := b.Write(ctx, "analysis/b", []byte("two")); err != nil {
		t.Fatal(err)
	}
	if err := b.Write(ctx, "other/c", []byte("three")); err != nil {
		t.Fatal(err)
	}

	data, err := b.Read(ctx, "analysis/a")
	if err != nil || !bytes.Equal(data, []byte("one")) {
		t.Errorf("Read = (%q, %v)", data, err)
	}

	keys, err := b.List(ctx, "analysis/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "analysis/a" || keys[1] != "analysis/b" {
		t.Errorf("keys = %v, want [analysis/a analysis/b]", keys)
	}

	if err := b.Delete(ctx, "analysis/a"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Read(ctx, "analysis/a"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Read after delete err = %v, want ErrSnapshotNotFound", err)
	}
}

func TestFileSnapshotBackend(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileSnapshotBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := b.Read(ctx, "analysis/x"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Read(missing) err = %v, want ErrSnapshotNotFound", err)
	}

	if err := b.Write(ctx, "analysis/x", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	data, err := b.Read(ctx, "analysis/x")
	if err != nil || !bytes.Equal(data, []byte("payload")) {
		t.Errorf("Read = (%q, %v)", data, err)
	}

	keys, err := b.List(ctx, "analysis/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "analysis/x" {
		t.Errorf("keys = %v", keys)
	}

	if err := b.Delete(ctx, "analysis/x"); err != nil {
		t.Fatal(err)
	}
	// Deleting a missing key is tolerated.
	if err := b.Delete(ctx, "analysis/x"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestFileSnapshotBackend_RejectsTraversal(t *testing.T) {
	b, err := NewFileSnapshotBackend(filepath.Join(t.TempDir(), "snaps"))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Write(context.Background(), "../escape", []byte("x")); err == nil {
		t.Error("expected traversal key to be rejected")
	}
}

func TestSnapshotArchiver_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := NewMemorySnapshotBackend()
	archiver, err := NewSnapshotArchiver(backend, nil)
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	archiver.now = func() time.Time { return at }

	key, err := archiver.Archive(ctx, sampleAnalysis(at))
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if key != "analysis/20260301T120000.000Z.json.sz" {
		t.Errorf("key = %q", key)
	}

	loaded, err := archiver.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.GeneratedAt.Equal(at) {
		t.Errorf("generated at = %v, want %v", loaded.GeneratedAt, at)
	}
	if len(loaded.UsagePatterns) != 1 || loaded.UsagePatterns[0].EntityID != "light.kitchen" {
		t.Errorf("patterns = %+v", loaded.UsagePatterns)
	}
	if loaded.AutomationEfficiency != 75 {
		t.Errorf("automation efficiency = %v", loaded.AutomationEfficiency)
	}

	keys, err := archiver.List(ctx)
	if err != nil || len(keys) != 1 || keys[0] != key {
		t.Errorf("List = (%v, %v)", keys, err)
	}
}

func TestSnapshotArchiver_EncryptedRoundTrip(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, enc := range map[string]*EncryptionConfig{
		"fixed key": {Enabled: true, Key: bytes.Repeat([]byte{7}, 32)},
		"password":  {Enabled: true, KeyPassword: "correct horse battery staple"},
	} {
		backend := NewMemorySnapshotBackend()
		archiver, err := NewSnapshotArchiver(backend, enc)
		if err != nil {
			t.Fatalf("%s: NewSnapshotArchiver: %v", name, err)
		}
		archiver.now = func() time.Time { return at }

		key, err := archiver.Archive(ctx, sampleAnalysis(at))
		if err != nil {
			t.Fatalf("%s: Archive: %v", name, err)
		}

		// The stored bytes must not contain recognizable plaintext.
		raw, err := backend.Read(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if bytes.Contains(raw, []byte("light.kitchen")) {
			t.Errorf("%s: plaintext leaked into stored snapshot", name)
		}

		loaded, err := archiver.Load(ctx, key)
		if err != nil {
			t.Fatalf("%s: Load: %v", name, err)
		}
		if len(loaded.Recommendations) != 1 || loaded.Recommendations[0].Priority != 80 {
			t.Errorf("%s: recommendations = %+v", name, loaded.Recommendations)
		}
	}
}

func TestSnapshotArchiver_WrongKeyFails(t *testing.T) {
	ctx := context.Background()
	backend := NewMemorySnapshotBackend()

	writer, err := NewSnapshotArchiver(backend, &EncryptionConfig{Enabled: true, KeyPassword: "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	key, err := writer.Archive(ctx, sampleAnalysis(time.Now()))
	if err != nil {
		t.Fatal(err)
	}

	reader, err := NewSnapshotArchiver(backend, &EncryptionConfig{Enabled: true, KeyPassword: "beta"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reader.Load(ctx, key); err == nil {
		t.Error("expected decryption with the wrong password to fail")
	}
}

func TestNewS3SnapshotBackend_RequiresBucket(t *testing.T) {
	if _, err := NewS3SnapshotBackend(S3SnapshotConfig{}); err == nil {
		t.Error("expected an error without a bucket")
	}
}

func TestNewSnapshotEncryptor_Validation(t *testing.T) {
	if _, err := newSnapshotEncryptor(EncryptionConfig{Enabled: true}); err == nil {
		t.Error("expected an error without key material")
	}
	if _, err := newSnapshotEncryptor(EncryptionConfig{Enabled: true, Key: []byte("short")}); err == nil {
		t.Error("expected an error for a short key")
	}
}
