package loader

import "downholeloader/internal/partition"

// Timeouts spec §4.6/§6 names explicitly.
const (
	WaitingGoodCRCTimeoutMillis = 5000
	WaitingBadCRCTimeoutMillis  = 120000
	LoaderModeTimeoutMillis     = 120000
	PostResetDrainMillis        = 500
)

// SerialStatus is the serial-port self-test result (spec §4.7: "not
// exercised in this core... otherwise reported as untested" — see
// SPEC_FULL's supplemented self-test status).
type SerialStatus byte

const (
	SerialUntested SerialStatus = 0
	SerialPass     SerialStatus = 1
	SerialFail     SerialStatus = 2
)

// SelfTestResult is the outcome of CRC-checking one region against its
// CRC slot (spec §4.7).
type SelfTestResult struct {
	Valid bool
	CRC   uint16
}

// RunSelfTest CRCs the boot and application regions against their CRC
// slots (spec §4.7: "On entry: CRC-16 of the bootloader region is
// computed and compared to the word stored at the bootloader CRC slot;
// likewise for the application").
func RunSelfTest(dev partition.FlashDevice, pmap *partition.Map) (boot, app SelfTestResult) {
	bootRec, _ := pmap.Describe(partition.Boot)
	appRec, _ := pmap.Describe(partition.Application)
	return checkRegion(dev, bootRec), checkRegion(dev, appRec)
}

func checkRegion(dev partition.FlashDevice, rec partition.Record) SelfTestResult {
	crc, err := partition.CalculateCRCFlash(dev, rec)
	if err != nil {
		return SelfTestResult{}
	}
	expected, err := partition.ExpectedCRC(dev, rec)
	if err != nil {
		return SelfTestResult{CRC: crc}
	}
	return SelfTestResult{Valid: crc == expected, CRC: crc}
}

// InitialTimeout selects the Waiting-state timeout: 5s when the
// application CRC is good (giving the surface a narrow window to
// intercept before the jump), 120s when it's bad (giving a generous
// window to reflash) — spec §4.6, §6.
func InitialTimeout(appValid bool) uint32 {
	if appValid {
		return WaitingGoodCRCTimeoutMillis
	}
	return WaitingBadCRCTimeoutMillis
}
