package types

// ---- Reset reasons ----

// ResetReason is the hardware-reported cause of the current boot.
type ResetReason uint8

const (
	ResetUnknown ResetReason = iota
	ResetPowerOn
	ResetExternal
	ResetSoftware
	ResetPanic
	ResetInterruptWatchdog
	ResetTaskWatchdog
	ResetOtherWatchdog
	ResetDeepSleep
	ResetBrownout
	ResetSDIO
	ResetUSBPeripheral
	ResetJTAG
)

var resetNames = [...]string{
	"unknown", "power_on", "external", "software", "panic", "interrupt_watchdog",
	"task_watchdog", "other_watchdog", "deep_sleep", "brownout", "sdio", "usb", "jtag",
}

func (r ResetReason) String() string {
	if int(r) < len(resetNames) {
		return resetNames[r]
	}
	return "unknown"
}

// ParseResetReason is the inverse of String. Unknown names map to ResetUnknown.
func ParseResetReason(s string) ResetReason {
	for i, n := range resetNames {
		if n == s {
			return ResetReason(i)
		}
	}
	return ResetUnknown
}

// Cold reports whether retained memory must be treated as lost. Power-on and
// brownout wipe the RTC domain; an unknown cause is treated the same way.
func (r ResetReason) Cold() bool {
	switch r {
	case ResetPowerOn, ResetBrownout, ResetUnknown:
		return true
	}
	return false
}

// Abnormal reports a reset that was not requested by the node or its user.
func (r ResetReason) Abnormal() bool {
	switch r {
	case ResetPowerOn, ResetSoftware, ResetDeepSleep, ResetUSBPeripheral, ResetJTAG:
		return false
	}
	return true
}

// ---- Firmware slots ----

// SlotState is the bootloader's validity state of a slot.
type SlotState uint8

const (
	SlotUndefined SlotState = iota
	SlotValid
	SlotInvalid
	SlotPending // freshly written, not yet verified
)

var slotNames = [...]string{"undefined", "valid", "invalid", "pending"}

func (s SlotState) String() string {
	if int(s) < len(slotNames) {
		return slotNames[s]
	}
	return "undefined"
}

// FirmwareInfo is the metadata embedded in a slot's image.
type FirmwareInfo struct {
	Version string // version token, e.g. "v2.0.0-rc3-8-g1a1ba69"
}

// Slot is one firmware partition. Firmware is nil when the image carries no
// readable metadata.
type Slot struct {
	Label    string
	State    SlotState
	Firmware *FirmwareInfo
}
