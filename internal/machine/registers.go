package machine

import "fmt"

// CoffeeType identifies one delivery selection on a group head.
type CoffeeType string

const (
	SingleShort  CoffeeType = "single_short"
	SingleMedium CoffeeType = "single_medium"
	SingleLong   CoffeeType = "single_long"
	DoubleShort  CoffeeType = "double_short"
	DoubleMedium CoffeeType = "double_medium"
	DoubleLong   CoffeeType = "double_long"
	Purge        CoffeeType = "purge"
)

// ValidCoffeeTypes lists the deliverable selections accepted by DeliverCoffee.
// Purge has its own command register value and is triggered via StartPurge.
var ValidCoffeeTypes = []CoffeeType{
	SingleShort, SingleMedium, SingleLong,
	DoubleShort, DoubleMedium, DoubleLong,
}

// Command register values understood by the S50-QSS control board.
const (
	cmdSingleShort  uint16 = 1
	cmdSingleLong   uint16 = 2
	cmdDoubleShort  uint16 = 4
	cmdDoubleLong   uint16 = 8
	cmdNoAction     uint16 = 16
	cmdSingleMedium uint16 = 32
	cmdDoubleMedium uint16 = 64
	cmdStopDelivery uint16 = 128
	cmdStartPurge   uint16 = 256
)

// Selection status bits (registers 256..259, one per group).
const (
	maskSingleShort    uint16 = 0x01
	maskSingleLong     uint16 = 0x02
	maskDoubleShort    uint16 = 0x04
	maskDoubleLong     uint16 = 0x08
	maskContinuousFlow uint16 = 0x10
	maskSingleMedium   uint16 = 0x20
	maskDoubleMedium   uint16 = 0x40
	maskPurge          uint16 = 0x80

	// bits 0-7 cover every delivery kind
	deliveryMask uint16 = 0xFF
)

// Holding register addresses.
const (
	regSerialNumber   uint16 = 0 // 10 registers, 20 ASCII chars
	regSerialNumLen   uint16 = 10
	regFirmware       uint16 = 11
	regSelectionBase  uint16 = 256
	regSensorFault    uint16 = 260
	regPurgeCountdown uint16 = 264
	regBlocked        uint16 = 269
	regGroupCount     uint16 = 270
	regCommandBase    uint16 = 512
	regWaterCommand   uint16 = 516
	regMATCommand     uint16 = 517
)

// MaxGroups is the most group heads the S50-QSS register map addresses.
const MaxGroups = 4

// Selection is the decoded delivery status register of a single group.
type Selection struct {
	SingleShort    bool   `json:"single_short"`
	SingleLong     bool   `json:"single_long"`
	DoubleShort    bool   `json:"double_short"`
	DoubleLong     bool   `json:"double_long"`
	ContinuousFlow bool   `json:"continuous_flow"`
	SingleMedium   bool   `json:"single_medium"`
	DoubleMedium   bool   `json:"double_medium"`
	Purge          bool   `json:"purge"`
	Raw            uint16 `json:"raw_status"`
}

func decodeSelection(raw uint16) Selection {
	return Selection{
		SingleShort:    raw&maskSingleShort != 0,
		SingleLong:     raw&maskSingleLong != 0,
		DoubleShort:    raw&maskDoubleShort != 0,
		DoubleLong:     raw&maskDoubleLong != 0,
		ContinuousFlow: raw&maskContinuousFlow != 0,
		SingleMedium:   raw&maskSingleMedium != 0,
		DoubleMedium:   raw&maskDoubleMedium != 0,
		Purge:          raw&maskPurge != 0,
		Raw:            raw,
	}
}

// Active reports whether any delivery bit is set for the group.
func (s Selection) Active() bool { return s.Raw&deliveryMask != 0 }

// CoffeeType returns the delivery type implied by the set selection bits.
// ok is false when no recognized selection bit is set.
func (s Selection) CoffeeType() (CoffeeType, bool) {
	switch {
	case s.SingleShort:
		return SingleShort, true
	case s.SingleMedium:
		return SingleMedium, true
	case s.SingleLong:
		return SingleLong, true
	case s.DoubleShort:
		return DoubleShort, true
	case s.DoubleMedium:
		return DoubleMedium, true
	case s.DoubleLong:
		return DoubleLong, true
	case s.Purge:
		return Purge, true
	}
	return "", false
}

func commandFor(ct CoffeeType) (uint16, error) {
	switch ct {
	case SingleShort:
		return cmdSingleShort, nil
	case SingleMedium:
		return cmdSingleMedium, nil
	case SingleLong:
		return cmdSingleLong, nil
	case DoubleShort:
		return cmdDoubleShort, nil
	case DoubleMedium:
		return cmdDoubleMedium, nil
	case DoubleLong:
		return cmdDoubleLong, nil
	}
	return 0, fmt.Errorf("invalid coffee type: %s", ct)
}

func validGroup(group int) error {
	if group < 1 || group > MaxGroups {
		return fmt.Errorf("group number must be 1-%d, got %d", MaxGroups, group)
	}
	return nil
}
