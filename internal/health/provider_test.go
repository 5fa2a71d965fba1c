package health

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryStatsUsedPercent(t *testing.T) {
	stats := MemoryStats{TotalBytes: 1000, AvailableBytes: 250}
	if got := stats.UsedPercent(); got != 75 {
		t.Fatalf("UsedPercent = %v, want 75", got)
	}
	if got := (MemoryStats{}).UsedPercent(); got != 0 {
		t.Fatalf("UsedPercent on zero total = %v, want 0", got)
	}
}

func TestDiskStatsFreePercent(t *testing.T) {
	stats := DiskStats{TotalBytes: 2000, FreeBytes: 500}
	if got := stats.FreePercent(); got != 25 {
		t.Fatalf("FreePercent = %v, want 25", got)
	}
}

func TestSystemSourceReadsLiveStats(t *testing.T) {
	src := NewSystemSource()

	mem, err := src.Memory()
	if err != nil {
		t.Fatalf("Memory failed: %v", err)
	}
	if mem.TotalBytes == 0 {
		t.Fatal("expected nonzero total memory")
	}

	disk, err := src.Disk(t.TempDir())
	if err != nil {
		t.Fatalf("Disk failed: %v", err)
	}
	if disk.TotalBytes == 0 {
		t.Fatal("expected nonzero filesystem size")
	}

	if src.Goroutines() < 1 {
		t.Fatal("expected at least one goroutine")
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.log"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.log"), make([]byte, 50), 0o644); err != nil {
		t.Fatal(err)
	}

	total, err := DirSize(dir)
	if err != nil {
		t.Fatalf("DirSize failed: %v", err)
	}
	if total != 150 {
		t.Fatalf("DirSize = %d, want 150", total)
	}

	missing, err := DirSize(filepath.Join(dir, "absent"))
	if err != nil {
		t.Fatalf("DirSize on missing dir failed: %v", err)
	}
	if missing != 0 {
		t.Fatalf("DirSize on missing dir = %d, want 0", missing)
	}
}

func TestFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swarm.db")
	if err := os.WriteFile(path, make([]byte, 42), 0o644); err != nil {
		t.Fatal(err)
	}
	size, err := FileSize(path)
	if err != nil || size != 42 {
		t.Fatalf("FileSize = %d, %v; want 42, nil", size, err)
	}
	size, err = FileSize(filepath.Join(dir, "missing.db"))
	if err != nil || size != 0 {
		t.Fatalf("FileSize missing = %d, %v; want 0, nil", size, err)
	}
}
