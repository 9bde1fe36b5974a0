package sysinfo

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Collect gathers host diagnostics for the status command: where the client
// runs, how much room the footage directory has, and the runtime in use.
func Collect(footageDir string) (map[string]interface{}, error) {
	data := make(map[string]interface{})

	hInfo, err := host.Info()
	if err == nil {
		data["Hostname"] = hInfo.Hostname
		data["OS"] = hInfo.OS
		data["Platform"] = hInfo.Platform
		data["PlatformVersion"] = hInfo.PlatformVersion
		data["Arch"] = hInfo.KernelArch
	}

	cInfos, err := cpu.Info()
	if err == nil && len(cInfos) > 0 {
		data["CPU Model"] = cInfos[0].ModelName
		data["CPU Cores"] = len(cInfos)
	}

	mInfo, err := mem.VirtualMemory()
	if err == nil {
		data["Total RAM"] = fmt.Sprintf("%d MB", mInfo.Total/1024/1024)
	}

	if footageDir != "" {
		if usage, err := disk.Usage(footageDir); err == nil {
			data["Footage Dir Free"] = fmt.Sprintf("%d MB", usage.Free/1024/1024)
			data["Footage Dir Used"] = fmt.Sprintf("%.1f%%", usage.UsedPercent)
		}
	}

	data["Go Version"] = runtime.Version()
	return data, nil
}
