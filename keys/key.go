package keys

import (
	"fmt"
	"strings"
)

// Key identifies a physical key on the controller. The numeric value is the code
// sent to the host.
type Key uint8

const (
	None Key = iota
	Channel0
	Channel1
	Channel2
	Channel3
	Channel4
	Channel5
	Channel6
	Channel7
	Channel8
	Channel9
	Seq0
	Seq1
	Seq2
	Seq3
	Seq4
	Seq5
	Seq6
	Seq7
	Seq8
	Seq9
	Seq10
	Seq11
	Seq12
	Seq13
	Seq14
	Seq15
	BlueEncClick
	GreenEncClick
	YellowEncClick
	RedEncClick
	Shift
	Sends
	Plus
	Mixer
	Minus
	Fx1
	Fx2
	Master
	Play
	Record
	Arp
	Slots
	Twist1
	Twist2
	Looper
	External
	Sampler
	Envelope
	Voices
	Settings
	Sequencer
	Synth
	UnassignedA
	UnassignedB
	UnassignedC
	UnassignedD
	UnassignedE
	UnassignedF
	keyCount
)

var keyNames = [keyCount]string{
	"None",
	"Channel0", "Channel1", "Channel2", "Channel3", "Channel4",
	"Channel5", "Channel6", "Channel7", "Channel8", "Channel9",
	"Seq0", "Seq1", "Seq2", "Seq3", "Seq4", "Seq5", "Seq6", "Seq7",
	"Seq8", "Seq9", "Seq10", "Seq11", "Seq12", "Seq13", "Seq14", "Seq15",
	"BlueEncClick", "GreenEncClick", "YellowEncClick", "RedEncClick",
	"Shift", "Sends", "Plus", "Mixer", "Minus", "Fx1", "Fx2", "Master",
	"Play", "Record", "Arp", "Slots", "Twist1", "Twist2", "Looper",
	"External", "Sampler", "Envelope", "Voices", "Settings", "Sequencer", "Synth",
	"UnassignedA", "UnassignedB", "UnassignedC", "UnassignedD", "UnassignedE", "UnassignedF",
}

func (k Key) String() string {
	if k >= keyCount {
		return fmt.Sprintf("Key(%d)", uint8(k))
	}
	return keyNames[k]
}

// Valid reports whether k is a known key code other than None.
func (k Key) Valid() bool {
	return k > None && k < keyCount
}

// ParseKey looks a key up by name, ignoring case.
func ParseKey(name string) (Key, error) {
	for i, n := range keyNames {
		if strings.EqualFold(n, name) {
			return Key(i), nil
		}
	}
	return None, fmt.Errorf("keys: unknown key %q", name)
}

// All returns every valid key in code order.
func All() []Key {
	all := make([]Key, 0, keyCount-1)
	for k := Key(1); k < keyCount; k++ {
		all = append(all, k)
	}
	return all
}
