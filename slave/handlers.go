package slave

// onEvent services the event interrupt line. Conditions are checked in priority
// order; exactly one branch runs per interrupt. Handlers never log: conditions worth
// reporting go to d.diag and the waiting task is woken to flush them.
func (d *Driver) onEvent() {
	flags := d.periph.Flags()
	switch {
	case flags.Has(FlagAddressMatch):
		if d.periph.ClearAddressMatch() {
			p, ok := d.txq.pop()
			if ok {
				d.stats.ReadTransfers++
			} else {
				d.stats.EmptyReads++
			}
			d.stage.transmit(p)
		} else {
			d.stage.receive()
		}

	case d.stage.kind == StageTransmitting && flags.Has(FlagTxEmpty):
		d.periph.WriteByte(d.stage.nextByte())

	case d.stage.kind == StageReceiving && flags.Has(FlagRxNotEmpty):
		b := d.periph.ReadByte()
		if !d.stage.rx.append(b) {
			d.stats.DroppedBytes++
			d.diag.droppedBytes++
			d.wake.wake()
		}

	case d.stage.kind == StageReceiving && flags.Has(FlagStop):
		d.periph.ClearStop()
		// ACK stays off until the task takes the packet; the host stalls meanwhile
		d.periph.SetAck(false)
		p, ok := d.stage.rx.packet()
		if !ok {
			d.stats.LengthMismatches++
			d.diag.mismatches++
			d.diag.lastRxLen = d.stage.rx.len()
		}
		d.stats.Received++
		d.stage.ready(p)
		d.wake.wake()

	default:
		d.stats.Resyncs++
		if flags.Has(FlagStop) {
			d.periph.ClearStop()
		}
		if flags.Has(FlagRxNotEmpty) {
			_ = d.periph.ReadByte()
		}
	}
}

// onError services the error interrupt line. A NACK during a read is the normal end
// of the transfer; anything else is recorded and the bus is fully reset.
func (d *Driver) onError() {
	flags := d.periph.Flags()
	faults := flags.Faults()
	if d.stage.kind == StageTransmitting && faults == FlagAckFailure {
		d.periph.ClearAckFailure()
		d.stats.ReadTerminations++
		d.stage.wait()
		return
	}

	d.stats.Faults++
	d.diag.faults++
	d.diag.lastFaults = faults
	d.diag.lastFaultStage = d.stage.kind

	d.periph.SetAck(true)
	// Clears everything, including flags unrelated to the fault; the ones SR1
	// writes cannot clear are drained below with their own sequences.
	d.periph.ClearStatus()
	flags = d.periph.Flags()
	if flags.Has(FlagAddressMatch) {
		_ = d.periph.ClearAddressMatch()
	}
	if flags.Has(FlagStop) {
		d.periph.ClearStop()
	}
	if flags.Has(FlagRxNotEmpty) {
		_ = d.periph.ReadByte()
	}
	d.stage.wait()
	d.wake.wake()
}
