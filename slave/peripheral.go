package slave

// Registers is the raw register file of an STM32F1-style I2C block. Reads and
// writes have the hardware side effects; callers own the ordering.
type Registers interface {
	EnableClock()
	DisableClock()
	ReadSR1() uint32
	WriteSR1(v uint32)
	ReadSR2() uint32
	ReadCR1() uint32
	WriteCR1(v uint32)
	ReadCR2() uint32
	WriteCR2(v uint32)
	WriteOAR1(v uint32)
	WriteOAR2(v uint32)
	ReadDR() uint32
	WriteDR(v uint32)
}

// Peripheral exposes the named operations the protocol engine needs. Every two-step
// clear sequence lives behind one of these methods.
type Peripheral interface {
	// Configure enables the block as a 7-bit slave on address with ACK armed and all
	// three interrupt sources enabled.
	Configure(address uint16) error
	// Shutdown disables the interrupt sources and the block, then gates its clock.
	Shutdown()
	// Flags reads SR1.
	Flags() Flags
	// ClearAddressMatch clears ADDR and reports whether the host is reading.
	ClearAddressMatch() (hostReading bool)
	// ClearStop clears STOPF.
	ClearStop()
	// ClearAckFailure clears AF and nothing else.
	ClearAckFailure()
	// ClearStatus writes zero to SR1.
	ClearStatus()
	ReadByte() byte
	WriteByte(b byte)
	SetAck(enabled bool)
}

var _ Peripheral = &RegisterPeripheral{}

// RegisterPeripheral implements Peripheral on top of a register file.
type RegisterPeripheral struct {
	regs Registers
}

func NewPeripheral(regs Registers) *RegisterPeripheral {
	return &RegisterPeripheral{regs: regs}
}

func (p *RegisterPeripheral) Configure(address uint16) error {
	if err := validateAddress(address); err != nil {
		return err
	}
	r := p.regs
	r.EnableClock()
	r.WriteCR1(r.ReadCR1() &^ CR1Enable)
	r.WriteCR1((r.ReadCR1() &^ CR1GeneralCall) | CR1NoStretch)
	r.WriteOAR1(OAR1Reserved14 | uint32(address&0x7F)<<1)
	r.WriteOAR2(0)
	r.WriteCR1(r.ReadCR1() | CR1Enable)
	r.WriteCR1((r.ReadCR1() &^ CR1Pos) | CR1Ack)
	r.WriteCR2(r.ReadCR2() | CR2BufferIRQ | CR2ErrorIRQ | CR2EventIRQ)
	return nil
}

func (p *RegisterPeripheral) Shutdown() {
	r := p.regs
	r.WriteCR2(r.ReadCR2() &^ (CR2BufferIRQ | CR2ErrorIRQ | CR2EventIRQ))
	r.WriteCR1(r.ReadCR1() &^ CR1Enable)
	r.DisableClock()
}

func (p *RegisterPeripheral) Flags() Flags {
	return Flags(p.regs.ReadSR1())
}

// ClearAddressMatch reads SR1 then SR2. TRA is only valid in the SR2 value read as
// part of this sequence.
func (p *RegisterPeripheral) ClearAddressMatch() bool {
	_ = p.regs.ReadSR1()
	sr2 := p.regs.ReadSR2()
	return sr2&SR2Transmitter != 0
}

// ClearStop reads SR1 then writes CR1 back unchanged.
func (p *RegisterPeripheral) ClearStop() {
	_ = p.regs.ReadSR1()
	p.regs.WriteCR1(p.regs.ReadCR1())
}

func (p *RegisterPeripheral) ClearAckFailure() {
	// rc_w0: ones leave the other bits untouched
	p.regs.WriteSR1(^uint32(FlagAckFailure) & 0xFFFF)
}

func (p *RegisterPeripheral) ClearStatus() {
	p.regs.WriteSR1(0)
}

func (p *RegisterPeripheral) ReadByte() byte {
	return byte(p.regs.ReadDR())
}

func (p *RegisterPeripheral) WriteByte(b byte) {
	p.regs.WriteDR(uint32(b))
}

func (p *RegisterPeripheral) SetAck(enabled bool) {
	cr1 := p.regs.ReadCR1()
	if enabled {
		cr1 |= CR1Ack
	} else {
		cr1 &^= CR1Ack
	}
	p.regs.WriteCR1(cr1)
}

// validateAddress rejects the reserved 0x00-0x07 and 0x78-0x7F ranges.
func validateAddress(address uint16) error {
	if address < 0x08 || address > 0x77 {
		return ErrInvalidAddress
	}
	return nil
}
