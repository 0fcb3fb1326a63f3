// Package sysmem reports host and process memory for the batch scheduler.
package sysmem

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/prometheus/procfs"
)

// Probe reads /proc. Process usage falls back to the Go runtime when /proc
// is not mounted.
type Probe struct {
	fs    *procfs.FS
	fsErr error
}

func NewProbe() *Probe {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return &Probe{fsErr: err}
	}
	return &Probe{fs: &fs}
}

// NewProbeAt reads a procfs tree mounted at mountPoint.
func NewProbeAt(mountPoint string) (*Probe, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return &Probe{fs: &fs}, nil
}

func (p *Probe) AvailableBytes() (uint64, error) {
	if p.fs == nil {
		return 0, fmt.Errorf("procfs unavailable: %w", p.fsErr)
	}
	info, err := p.fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("read meminfo: %w", err)
	}
	if info.MemAvailable == nil {
		return 0, errors.New("meminfo has no MemAvailable")
	}
	return *info.MemAvailable * 1024, nil
}

func (p *Probe) ProcessBytes() (uint64, error) {
	if p.fs != nil {
		if proc, err := p.fs.Self(); err == nil {
			if stat, err := proc.Stat(); err == nil {
				return uint64(stat.ResidentMemory()), nil
			}
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys, nil
}
