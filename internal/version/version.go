package version

import "strconv"

const AppName = "cedarhud"

type Version struct {
	MajorNumber int64
	MinorNumber int64
	PatchNumber int64
}

// String generate a human readable Version
func (m *Version) String() string {
	return strconv.FormatInt(m.MajorNumber, 10) + "." + strconv.FormatInt(m.MinorNumber, 10) + "." + strconv.FormatInt(m.PatchNumber, 10)
}

// Banner is the short label shown on the panel at startup, e.g. "v0.3.1"
func (m *Version) Banner() string {
	return "v" + m.String()
}

var (
	AppVersion = Version{
		MajorNumber: 0,
		MinorNumber: 3,
		PatchNumber: 1,
	}
)
