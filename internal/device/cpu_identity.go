// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
)

// CPUIdentity identifies the processor model of the local machine
type CPUIdentity struct {
	Vendor string
	Family int
	Model  int
}

func (id CPUIdentity) String() string {
	return fmt.Sprintf("%s family %d model %d", id.Vendor, id.Family, id.Model)
}

// DetectCPU reads the vendor, family and model of the first processor
// listed in <procfsPath>/cpuinfo. Any missing or malformed field makes the
// CPU unsupported.
func DetectCPU(procfsPath string) (CPUIdentity, error) {
	fs, err := procfs.NewFS(procfsPath)
	if err != nil {
		return CPUIdentity{}, unsupported("failed to open procfs", err)
	}

	infos, err := fs.CPUInfo()
	if err != nil {
		return CPUIdentity{}, unsupported("failed to parse cpuinfo", err)
	}
	if len(infos) == 0 {
		return CPUIdentity{}, unsupported("cpuinfo lists no processors", nil)
	}

	info := infos[0]
	vendor := strings.TrimSpace(info.VendorID)
	if vendor == "" {
		return CPUIdentity{}, unsupported("cpuinfo has no vendor_id", nil)
	}

	family, err := strconv.Atoi(strings.TrimSpace(info.CPUFamily))
	if err != nil {
		return CPUIdentity{}, unsupported(fmt.Sprintf("invalid cpu family %q", info.CPUFamily), nil)
	}

	model, err := strconv.Atoi(strings.TrimSpace(info.Model))
	if err != nil {
		return CPUIdentity{}, unsupported(fmt.Sprintf("invalid cpu model %q", info.Model), nil)
	}

	return CPUIdentity{Vendor: vendor, Family: family, Model: model}, nil
}
