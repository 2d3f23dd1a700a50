// Package transform builds the per-client video-filter sub-pipeline
// (crop, rotate, scale, box, in that fixed order) described by
// syncrecord.Stages, and applies it to a playbin element's
// "video-filter" property.
package transform

import (
	"fmt"
	"strings"

	"github.com/go-gst/go-gst/gst"

	"github.com/ford-prefect/gst-sync-server/internal/syncerr"
	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

// rotateMethods maps the wire rotate method names to videoflip's "method"
// enum nicks.
var rotateMethods = map[string]string{
	"none":              "none",
	"clockwise":         "clockwise",
	"counterclockwise":  "counterclockwise",
	"rotate-180":        "rotate-180",
	"horizontal-flip":   "horizontal-flip",
	"vertical-flip":     "vertical-flip",
	"upper-left-diagonal":  "upper-left-diagonal",
	"upper-right-diagonal": "upper-right-diagonal",
}

// describe renders stages as a gst-launch-style bin description in the
// fixed crop→rotate→scale→box order. A nil stage for a given step is
// rendered as an identity passthrough (e.g. no crop means crop=0 on all
// sides), so the ordering holds regardless of which stages are present.
// Pulled out of Build so the string shape is testable without a
// GStreamer runtime.
func describe(stages syncrecord.Stages) (string, error) {
	var parts []string

	top, bottom, left, right := 0, 0, 0, 0
	if stages.Crop != nil {
		top, bottom, left, right = stages.Crop.Top, stages.Crop.Bottom, stages.Crop.Left, stages.Crop.Right
	}
	parts = append(parts, fmt.Sprintf("videocrop name=crop top=%d bottom=%d left=%d right=%d", top, bottom, left, right))

	method := "none"
	if stages.Rotate != nil {
		m, ok := rotateMethods[stages.Rotate.Method]
		if !ok {
			return "", syncerr.Newf(syncerr.Protocol, "unknown rotate method %q", stages.Rotate.Method)
		}
		method = m
	}
	parts = append(parts, fmt.Sprintf("videoflip name=flip method=%s", method))

	parts = append(parts, "videoscale name=scale")
	if stages.Scale != nil {
		parts = append(parts, fmt.Sprintf("video/x-raw,width=%d,height=%d", stages.Scale.Width, stages.Scale.Height))
	}

	btop, bbottom, bleft, bright := 0, 0, 0, 0
	if stages.Box != nil {
		btop, bbottom, bleft, bright = stages.Box.Top, stages.Box.Bottom, stages.Box.Left, stages.Box.Right
	}
	parts = append(parts, fmt.Sprintf("videobox name=box top=%d bottom=%d left=%d right=%d", btop, bbottom, bleft, bright))

	return strings.Join(parts, " ! "), nil
}

// Build constructs a videocrop ! videoflip ! videoscale ! videobox bin
// for stages, or nil if stages is empty.
func Build(stages syncrecord.Stages) (*gst.Bin, error) {
	if stages.Empty() {
		return nil, nil
	}

	desc, err := describe(stages)
	if err != nil {
		return nil, err
	}

	bin, err := gst.NewBinFromString(desc, true)
	if err != nil {
		return nil, syncerr.Newf(syncerr.Timeline, "failed to build transform bin %q: %v", desc, err)
	}
	return bin, nil
}

// Apply sets element's "video-filter" property to the bin built from
// stages for clientID, looked up in transforms. A client with no entry
// gets no filter (nil), the identity behavior.
func Apply(element *gst.Pipeline, transforms syncrecord.Transforms, clientID string) error {
	stages := transforms[clientID]
	bin, err := Build(stages)
	if err != nil {
		return err
	}
	element.SetProperty("video-filter", bin)
	return nil
}
