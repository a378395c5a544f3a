package attach

// Slot identifies one of the three attachment points.
type Slot int

const (
	SlotOutfit Slot = iota
	SlotHat
	SlotBackground
)

func (s Slot) String() string {
	switch s {
	case SlotOutfit:
		return "outfit"
	case SlotHat:
		return "hat"
	case SlotBackground:
		return "background"
	}
	return "unknown"
}

// State is the lifecycle position of a slot.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateAttached
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAttached:
		return "attached"
	}
	return "empty"
}

// SlotInfo describes what a slot currently shows.
type SlotInfo struct {
	State State  `json:"state"`
	ID    string `json:"id,omitempty"`
	URL   string `json:"url,omitempty"`
	// Instance is unique per attached asset instance.
	Instance string `json:"instance,omitempty"`
	// Pending is set while a newer request for the slot is loading.
	Pending string `json:"pending,omitempty"`
}

// Snapshot is a consistent view of every slot.
type Snapshot struct {
	Outfit     SlotInfo `json:"outfit"`
	Hat        SlotInfo `json:"hat"`
	Background SlotInfo `json:"background"`
	Mode       string   `json:"mode"`
}

// slot is the bookkeeping shared by all three slots. gen grows with every
// request; a load may only complete if its generation is still current.
type slot struct {
	gen      uint64
	loading  bool
	id       string
	url      string
	instance string
	pending  string
}

func (s *slot) begin(id string) uint64 {
	s.gen++
	s.loading = true
	s.pending = id
	return s.gen
}

func (s *slot) current(gen uint64) bool { return s.gen == gen }

// settle ends the in-flight request.
func (s *slot) settle() {
	s.loading = false
	s.pending = ""
}

func (s *slot) info(attached bool) SlotInfo {
	in := SlotInfo{ID: s.id, URL: s.url, Instance: s.instance, Pending: s.pending}
	switch {
	case s.loading:
		in.State = StateLoading
	case attached:
		in.State = StateAttached
	}
	return in
}
