// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// perfAttrSize is PERF_ATTR_SIZE_VER5. The kernel only reads the first
// Size bytes of the attribute, so the value must describe exactly the
// fields populated below.
const perfAttrSize = 120

// perfCounter is an open system-wide perf event bound to one CPU
type perfCounter interface {
	// Read returns the raw accumulated event count
	Read() (uint64, error)
	Close() error
}

// perfEventOpener opens perf events. It is an interface so tests can
// run without access to the power PMU.
type perfEventOpener interface {
	Open(pmuType uint32, config uint64, cpu int) (perfCounter, error)
}

type syscallPerfOpener struct{}

func newPerfEventAttr(pmuType uint32, config uint64) *unix.PerfEventAttr {
	return &unix.PerfEventAttr{
		Type:   pmuType,
		Size:   perfAttrSize,
		Config: config,
	}
}

// Open calls perf_event_open(attr, pid=-1, cpu, group_fd=-1, flags=0)
func (syscallPerfOpener) Open(pmuType uint32, config uint64, cpu int) (perfCounter, error) {
	attr := newPerfEventAttr(pmuType, config)
	fd, err := unix.PerfEventOpen(attr, -1, cpu, -1, 0)
	if err != nil {
		return nil, fmt.Errorf("perf_event_open(type=%d, config=0x%x, cpu=%d): %w", pmuType, config, cpu, err)
	}
	return &perfFD{fd: fd}, nil
}

type perfFD struct {
	fd int
}

func (p *perfFD) Read() (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(p.fd, buf[:])
	if err != nil {
		return 0, fmt.Errorf("failed to read perf counter: %w", err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("short perf counter read: %d bytes", n)
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}

func (p *perfFD) Close() error {
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}
