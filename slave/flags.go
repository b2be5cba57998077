package slave

import (
	"fmt"
	"strings"
)

// Flags is a snapshot of the SR1 status register.
type Flags uint32

// SR1 bits
const (
	FlagStartBit     Flags = 1 << 0
	FlagAddressMatch Flags = 1 << 1
	FlagByteFinished Flags = 1 << 2
	FlagHeader10     Flags = 1 << 3
	FlagStop         Flags = 1 << 4
	FlagRxNotEmpty   Flags = 1 << 6
	FlagTxEmpty      Flags = 1 << 7
	FlagBusError     Flags = 1 << 8
	FlagArbitration  Flags = 1 << 9
	FlagAckFailure   Flags = 1 << 10
	FlagOverrun      Flags = 1 << 11
	FlagPECError     Flags = 1 << 12
	FlagTimeout      Flags = 1 << 14
	FlagSMBusAlert   Flags = 1 << 15
)

// FaultMask covers every flag reported on the error interrupt line.
const FaultMask = FlagBusError | FlagArbitration | FlagAckFailure | FlagOverrun |
	FlagPECError | FlagTimeout | FlagSMBusAlert

// SR2 bits
const (
	SR2Master      uint32 = 1 << 0
	SR2Busy        uint32 = 1 << 1
	SR2Transmitter uint32 = 1 << 2
)

// CR1 bits
const (
	CR1Enable      uint32 = 1 << 0
	CR1GeneralCall uint32 = 1 << 6
	CR1NoStretch   uint32 = 1 << 7
	CR1Ack         uint32 = 1 << 10
	CR1Pos         uint32 = 1 << 11
)

// CR2 bits
const (
	CR2ErrorIRQ  uint32 = 1 << 8
	CR2EventIRQ  uint32 = 1 << 9
	CR2BufferIRQ uint32 = 1 << 10
)

// OAR bits
const (
	OAR1AddMode10 uint32 = 1 << 15
	// OAR1Reserved14 must be kept at 1 by software.
	OAR1Reserved14 uint32 = 1 << 14
	OAR2DualEnable uint32 = 1 << 0
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagStartBit, "start"},
	{FlagAddressMatch, "address match"},
	{FlagByteFinished, "byte transfer finished"},
	{FlagHeader10, "10-bit header"},
	{FlagStop, "stop"},
	{FlagRxNotEmpty, "rx not empty"},
	{FlagTxEmpty, "tx empty"},
	{FlagBusError, "bus error"},
	{FlagArbitration, "arbitration lost"},
	{FlagAckFailure, "acknowledge failure"},
	{FlagOverrun, "overrun/underrun"},
	{FlagPECError, "pec error"},
	{FlagTimeout, "timeout"},
	{FlagSMBusAlert, "smbus alert"},
}

// Has reports whether every bit of f2 is set in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Faults returns only the error-line bits of f.
func (f Flags) Faults() Flags {
	return f & FaultMask
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for _, fl := range flagNames {
		if f&fl.flag != 0 {
			names = append(names, fl.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("%#04x", uint32(f))
	}
	return strings.Join(names, "|")
}
