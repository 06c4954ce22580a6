package types

// AspectRatio is a frame shape requested by the user.
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
	AspectClassic   AspectRatio = "4:3"
	AspectTall      AspectRatio = "3:4"
)

// Valid reports whether a is one of the supported ratios.
func (a AspectRatio) Valid() bool {
	switch a {
	case AspectSquare, AspectLandscape, AspectPortrait, AspectClassic, AspectTall:
		return true
	}
	return false
}

// VideoRatio maps a to one of the two ratios the video models accept.
// Portrait stays portrait; everything else becomes landscape.
func (a AspectRatio) VideoRatio() AspectRatio {
	if a == AspectPortrait {
		return AspectPortrait
	}
	return AspectLandscape
}

// VideoDuration is the requested length of a generated video.
type VideoDuration string

const (
	DurationShort          VideoDuration = "short"
	DurationMedium         VideoDuration = "medium"
	DurationLong           VideoDuration = "long"
	DurationTwoMinutes     VideoDuration = "two_minutes"
	DurationThreeMinutes   VideoDuration = "three_minutes"
	DurationFourMinutes    VideoDuration = "four_minutes"
	DurationFiveMinutes    VideoDuration = "five_minutes"
	DurationTenMinutes     VideoDuration = "ten_minutes"
	DurationFifteenMinutes VideoDuration = "fifteen_minutes"
	DurationTwentyMinutes  VideoDuration = "twenty_minutes"
)

// Each extension adds roughly seven seconds to the initial clip.
var extensionCounts = map[VideoDuration]int{
	DurationShort:          0,
	DurationMedium:         3,
	DurationLong:           8,
	DurationTwoMinutes:     16,
	DurationThreeMinutes:   25,
	DurationFourMinutes:    33,
	DurationFiveMinutes:    42,
	DurationTenMinutes:     85,
	DurationFifteenMinutes: 128,
	DurationTwentyMinutes:  170,
}

// ExtensionCount returns how many extension steps follow the initial clip
// for d. Unknown durations yield 0.
func ExtensionCount(d VideoDuration) int {
	return extensionCounts[d]
}

// Valid reports whether d is a known duration.
func (d VideoDuration) Valid() bool {
	_, ok := extensionCounts[d]
	return ok
}
