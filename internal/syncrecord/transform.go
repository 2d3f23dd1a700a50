package syncrecord

// Crop removes pixels from each edge before the remaining stages run.
type Crop struct {
	Top    int `json:"top,omitempty"`
	Bottom int `json:"bottom,omitempty"`
	Left   int `json:"left,omitempty"`
	Right  int `json:"right,omitempty"`
}

// Rotate turns the frame by a multiple of 90 degrees, or flips it.
type Rotate struct {
	// Method matches videoflip's "method" enum nick, e.g. "clockwise",
	// "counterclockwise", "rotate-180", "horizontal-flip", "vertical-flip".
	Method string `json:"method"`
}

// Scale resizes the frame to an explicit width/height.
type Scale struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Box letterboxes or pillarboxes the frame with videobox-style insets;
// negative insets add padding, positive insets crop further.
type Box struct {
	Top    int `json:"top,omitempty"`
	Bottom int `json:"bottom,omitempty"`
	Left   int `json:"left,omitempty"`
	Right  int `json:"right,omitempty"`
}

// Stages is the per-client transform description. Stages are applied, in
// this fixed order, only when present: Crop, Rotate, Scale, Box.
type Stages struct {
	Crop   *Crop   `json:"crop,omitempty"`
	Rotate *Rotate `json:"rotate,omitempty"`
	Scale  *Scale  `json:"scale,omitempty"`
	Box    *Box    `json:"box,omitempty"`
}

// Empty reports whether no stage is set, i.e. no sub-pipeline is needed.
func (s Stages) Empty() bool {
	return s.Crop == nil && s.Rotate == nil && s.Scale == nil && s.Box == nil
}

// Transforms maps client id to that client's transform description.
type Transforms map[string]Stages
