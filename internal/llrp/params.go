package llrp

// Parameter type codes used by the TLV parameter codec (internal
// namespace — spec.md §1 explicitly scopes the per-parameter bit layout of
// the real LLRP standard out of this specification; these codes only need
// to be self-consistent between encode and decode, which is what the
// round-trip invariant in spec.md §8 actually tests).
const (
	paramLLRPStatus                  uint16 = 287
	paramReaderEventNotificationData uint16 = 246
	paramConnectionAttemptEvent      uint16 = 256
	paramAntennaEvent                uint16 = 255
	paramGeneralDeviceCapabilities   uint16 = 137
	paramRegulatoryCapabilities      uint16 = 144
	paramUHFBandCapabilities         uint16 = 145
	paramTransmitPowerLevelTableEntry uint16 = 146
	paramUHFC1G2RFModeTable          uint16 = 328
	paramUHFC1G2RFModeTableEntry     uint16 = 329
	paramROSpec                      uint16 = 177
	paramROBoundarySpec              uint16 = 178
	paramROSpecStartTrigger          uint16 = 179
	paramROSpecStopTrigger           uint16 = 182
	paramAISpec                      uint16 = 183
	paramAISpecStopTrigger           uint16 = 184
	paramInventoryParameterSpec      uint16 = 186
	paramRFTransmitterSettings       uint16 = 224
	paramROReportSpec                uint16 = 237
	paramTagReportContentSelector    uint16 = 238
	paramTagReportData               uint16 = 240
	paramEPC96                       uint16 = 241
	paramAccessSpec                  uint16 = 207
	paramAccessSpecStopTrigger       uint16 = 208
	paramAccessCommand               uint16 = 209
	paramC1G2TargetTag               uint16 = 339
	paramC1G2Read                    uint16 = 341
	paramC1G2Write                   uint16 = 343
	paramOpSpecResult                uint16 = 349
	paramAccessReportSpec            uint16 = 239
	paramC1G2InventoryCommand        uint16 = 330
)

// ModulationName2Type maps the user-facing Gen2 modulation name to its
// LLRP Mod code, per sllurp's Modulation_Name2Type table.
var ModulationName2Type = map[string]int{
	"FM0":    0,
	"M2":     1,
	"M4":     2,
	"M8":     3,
}

var modulationType2Name = func() map[int]string {
	out := make(map[int]string, len(ModulationName2Type))
	for n, t := range ModulationName2Type {
		out[t] = n
	}
	return out
}()

// DefaultModulation mirrors sllurp's DEFAULT_MODULATION.
const DefaultModulation = "M4"

// ModulationDefaultTari gives the recommended Tari (in nanoseconds, as LLRP
// encodes it: 25000 is 25 µs) for modulations that have a conventional
// default, matching sllurp's Modulation_DefaultTari.
var ModulationDefaultTari = map[string]int{
	"M4": 25000,
	"M8": 25000,
	"M2": 25000,
}

// CapabilityName2Type maps a GET_READER_CAPABILITIES RequestedData name to
// its wire code.
var CapabilityName2Type = map[string]uint8{
	"All":                        0,
	"GeneralDeviceCapabilities":  1,
	"LLRPCapabilities":           2,
	"RegulatoryCapabilities":     3,
	"AirProtocolLLRPCapabilities": 4,
}

// AirProtocol maps an air-protocol name to its wire code.
var AirProtocol = map[string]uint8{
	"UnspecifiedAirProtocol":  0,
	"EPCGlobalClass1Gen2":     1,
}

// tagContentSelectorFields lists, in a stable order, the boolean flags that
// make up a TagReportContentSelector, per spec.md §4.3.
var tagContentSelectorFields = []string{
	"EnableAntennaID",
	"EnablePeakRSSI",
	"EnableFirstSeenTimestamp",
	"EnableLastSeenTimestamp",
	"EnableTagSeenCount",
	"EnableROSpecID",
	"EnableSpecIndex",
	"EnableInventoryParameterSpecID",
	"EnableChannelIndex",
	"EnableAccessSpecID",
}
