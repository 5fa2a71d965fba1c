package health

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sys/unix"
)

// MemoryStats captures host memory occupancy at sample time.
type MemoryStats struct {
	TotalBytes     uint64
	AvailableBytes uint64
}

// UsedPercent reports the fraction of memory in use, 0..100.
func (m MemoryStats) UsedPercent() float64 {
	if m.TotalBytes == 0 {
		return 0
	}
	used := m.TotalBytes - m.AvailableBytes
	return float64(used) / float64(m.TotalBytes) * 100
}

// DiskStats captures filesystem occupancy for a sampled path.
type DiskStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// FreePercent reports the fraction of the filesystem still free, 0..100.
func (d DiskStats) FreePercent() float64 {
	if d.TotalBytes == 0 {
		return 0
	}
	return float64(d.FreeBytes) / float64(d.TotalBytes) * 100
}

// Source samples host and process statistics. Drones depend on this
// interface so tests can substitute fixed readings.
type Source interface {
	Memory() (MemoryStats, error)
	Disk(path string) (DiskStats, error)
	Goroutines() int
}

// SystemSource reads live statistics from the kernel. The probe functions
// are swappable so failure paths stay testable without a broken host.
type SystemSource struct {
	sysinfo func(*unix.Sysinfo_t) error
	statfs  func(string, *unix.Statfs_t) error
}

// NewSystemSource returns a Source backed by sysinfo(2) and statfs(2).
func NewSystemSource() *SystemSource {
	return &SystemSource{
		sysinfo: unix.Sysinfo,
		statfs:  unix.Statfs,
	}
}

// Memory samples host memory via sysinfo(2). Buffer pages count as
// available since the kernel reclaims them under pressure.
func (s *SystemSource) Memory() (MemoryStats, error) {
	var info unix.Sysinfo_t
	if err := s.sysinfo(&info); err != nil {
		return MemoryStats{}, fmt.Errorf("health: sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return MemoryStats{
		TotalBytes:     uint64(info.Totalram) * unit,
		AvailableBytes: (uint64(info.Freeram) + uint64(info.Bufferram)) * unit,
	}, nil
}

// Disk samples the filesystem holding path via statfs(2).
func (s *SystemSource) Disk(path string) (DiskStats, error) {
	var stat unix.Statfs_t
	if err := s.statfs(path, &stat); err != nil {
		return DiskStats{}, fmt.Errorf("health: statfs %s: %w", path, err)
	}
	blockSize := uint64(stat.Bsize)
	return DiskStats{
		TotalBytes: stat.Blocks * blockSize,
		FreeBytes:  stat.Bavail * blockSize,
	}, nil
}

// Goroutines reports the live goroutine count of this process.
func (s *SystemSource) Goroutines() int {
	return runtime.NumGoroutine()
}

// DirSize walks root and sums the sizes of regular files beneath it.
// A missing root counts as zero rather than an error; the directories
// measured here (log dir, data dir) may not exist yet.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if entry.Type().IsRegular() {
			info, infoErr := entry.Info()
			if infoErr != nil {
				return infoErr
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return 0, nil
	}
	return total, err
}

// FileSize returns the size of a single file, or zero when it does not
// exist yet (a fresh database before first write).
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}
