package detectors

import (
	"cscan/internal/core"
)

// ForConfig 按配置构建启用的检测器集合
func ForConfig(cfg *core.Config) []core.Detector {
	var out []core.Detector
	if cfg.Enabled(core.DetectorMemory) {
		out = append(out, NewMemoryDetector())
	}
	if cfg.Enabled(core.DetectorVariable) {
		out = append(out, NewVariableDetector())
	}
	if cfg.Enabled(core.DetectorLibrary) {
		out = append(out, NewLibraryDetector())
	}
	if cfg.Enabled(core.DetectorNumeric) {
		out = append(out, NewNumericDetector())
	}
	return out
}

// Names 检测器名称列表，用于报告头
func Names(ds []core.Detector) []string {
	names := make([]string, 0, len(ds))
	for _, d := range ds {
		names = append(names, d.Name())
	}
	return names
}
