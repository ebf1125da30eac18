package iqsource

import "log"

// New selects a backend per spec §4.1: hardware is used only if useHardware
// is set AND the backend initializes successfully; otherwise, or on any
// hardware init failure, it falls back to Synthetic. Hardware init failure
// is never fatal (spec §7 taxonomy #2).
func New(useHardware bool, hwCfg Config, hotChannelHz uint64) Source {
	if !useHardware {
		return NewSynthetic(hotChannelHz, 0)
	}

	hw, err := NewHardware(hwCfg)
	if err != nil {
		log.Printf("iqsource: hardware config invalid, falling back to synthetic: %v", err)
		return NewSynthetic(hotChannelHz, 0)
	}
	if err := hw.Open(); err != nil {
		log.Printf("iqsource: hardware init failed, falling back to synthetic: %v", err)
		return NewSynthetic(hotChannelHz, 0)
	}
	return hw
}
