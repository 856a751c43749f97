// Package hostinfo gathers the one-time hardware snapshot described in
// spec §3 (HostInfo): core/thread counts, CPU model and flags, memory,
// and the raw /proc blobs used for fleet-homogeneity diagnostics.
package hostinfo

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

// Gather collects a HostInfo snapshot from the running host. It is called
// exactly once at worker startup (see original_source/src/host_info.cc).
func Gather(ctx context.Context) (domain.HostInfo, error) {
	info := domain.HostInfo{
		NumCores:       cpuid.CPU.PhysicalCores,
		NumThreads:     cpuid.CPU.LogicalCores,
		Hyperthreading: cpuid.CPU.LogicalCores > cpuid.CPU.PhysicalCores,
		CPUModel:       cpuid.CPU.BrandName,
		CacheSizeKB:    cpuid.CPU.Cache.L2 / 1024,
		CPUFlags:       flagString(),
		Turboboost:     cpuBoostHeuristic(),
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryFree = vm.Available
	} else {
		return domain.HostInfo{}, fmt.Errorf("op=hostinfo.Gather: %w", err)
	}

	if cpuInfos, err := cpu.InfoWithContext(ctx); err == nil && len(cpuInfos) > 0 && info.CPUModel == "" {
		info.CPUModel = cpuInfos[0].ModelName
	}

	if hn, err := host.HostnameWithContext(ctx); err == nil {
		info.Hostname = hn
	} else if hn, err := os.Hostname(); err == nil {
		info.Hostname = hn
	}
	info.IP = localIP()

	info.CPUInfoRaw = readProcFile("/proc/cpuinfo")
	info.MemInfoRaw = readProcFile("/proc/meminfo")

	return info, nil
}

func flagString() string {
	feats := cpuid.CPU.FeatureSet()
	out := make([]string, 0, len(feats))
	for f := range feats {
		out = append(out, f)
	}
	return joinSpace(out)
}

// cpuBoostHeuristic stands in for the original's turboboost detection,
// which read a model-specific register the Go runtime cannot access
// portably. It reports cpuid's HT (hyperthreading) feature bit; no
// turbo-boost capability is read.
func cpuBoostHeuristic() bool {
	return cpuid.CPU.Features.Has(cpuid.HT)
}

func joinSpace(xs []string) string {
	out := ""
	for i, x := range xs {
		if i > 0 {
			out += " "
		}
		out += x
	}
	return out
}

func readProcFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

// LocalIP returns the worker's non-loopback IPv4 address, used for the
// `-l` log-file naming convention from spec §6.
func LocalIP() string { return localIP() }

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
