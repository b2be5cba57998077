package keys

const (
	Rows = 8
	Cols = 8
)

// Layout maps matrix positions to keys, indexed [row][col].
type Layout [Rows][Cols]Key

// DefaultLayout is the wiring of the controller's front panel.
var DefaultLayout = Layout{
	{Seq0, Channel2, Channel5, Channel8, Twist1, Sends, BlueEncClick, Sampler},
	{Channel0, Channel3, Channel6, Channel9, Fx2, Fx1, YellowEncClick, Looper},
	{Channel1, Channel4, Channel7, Seq15, Mixer, UnassignedC, None, Sequencer},
	{Seq1, Seq6, Seq11, UnassignedD, Play, Envelope, RedEncClick, Synth},
	{Seq2, Seq7, Seq12, UnassignedE, Twist2, UnassignedA, None, None},
	{Seq3, Seq8, Seq13, Slots, Minus, External, None, Arp},
	{Seq4, Seq9, Seq14, UnassignedF, Record, UnassignedB, GreenEncClick, Settings},
	{Seq5, Seq10, None, Shift, Plus, Voices, None, Master},
}

// Position returns where k sits in the layout.
func (l *Layout) Position(k Key) (row, col int, ok bool) {
	if k == None {
		return 0, 0, false
	}
	for r := range l {
		for c := range l[r] {
			if l[r][c] == k {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// State is one bit per matrix position, indexed by Index.
type State [(Rows*Cols + 7) / 8]byte

// Index returns the bit index of a matrix position.
func Index(row, col int) int {
	return col*Cols + row
}

func (s *State) Get(idx int) bool {
	return s[idx/8]&(1<<(idx%8)) != 0
}

func (s *State) Set(idx int, v bool) {
	if v {
		s[idx/8] |= 1 << (idx % 8)
	} else {
		s[idx/8] &^= 1 << (idx % 8)
	}
}
