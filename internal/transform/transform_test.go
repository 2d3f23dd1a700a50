package transform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

func TestDescribeOrdersStagesCropRotateScaleBox(t *testing.T) {
	stages := syncrecord.Stages{
		Crop:   &syncrecord.Crop{Top: 1, Bottom: 2, Left: 3, Right: 4},
		Rotate: &syncrecord.Rotate{Method: "clockwise"},
		Scale:  &syncrecord.Scale{Width: 640, Height: 480},
		Box:    &syncrecord.Box{Top: 5, Bottom: 6, Left: 7, Right: 8},
	}

	desc, err := describe(stages)
	require.NoError(t, err)

	cropIdx := indexOf(t, desc, "videocrop")
	flipIdx := indexOf(t, desc, "videoflip")
	scaleIdx := indexOf(t, desc, "videoscale")
	boxIdx := indexOf(t, desc, "videobox")

	require.Less(t, cropIdx, flipIdx)
	require.Less(t, flipIdx, scaleIdx)
	require.Less(t, scaleIdx, boxIdx)
}

func TestDescribeMissingStagesAreIdentity(t *testing.T) {
	desc, err := describe(syncrecord.Stages{Crop: &syncrecord.Crop{Top: 1}})
	require.NoError(t, err)
	require.Contains(t, desc, "videoflip name=flip method=none")
	require.Contains(t, desc, "videobox name=box top=0 bottom=0 left=0 right=0")
}

func TestDescribeUnknownRotateMethodErrors(t *testing.T) {
	_, err := describe(syncrecord.Stages{Rotate: &syncrecord.Rotate{Method: "sideways"}})
	require.Error(t, err)
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	t.Fatalf("%q not found in %q", needle, haystack)
	return -1
}
