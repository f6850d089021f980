package bolt

import (
	"errors"
	"fmt"
	"io"
)

// ErrUnsupportedVersion is returned when the server rejects every
// proposed Bolt version (agreed version decodes to 0.0).
var ErrUnsupportedVersion = errors.New("bolt: server rejected all proposed versions")

var handshakeMagic = [4]byte{0x60, 0x60, 0xB0, 0x17}

// Version is a Bolt protocol version, major.minor.
type Version struct {
	Major, Minor byte
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// offeredVersions is the client's version proposal list, offered
// strictly decreasing per spec.md §4.7: Memgraph tracks the 5.x Bolt
// line and Neo4j has shipped 5.0 through 5.8, so 5.4 is the highest
// realistic default offer with 5.0/4.4 as compatibility fallbacks. Only
// three real proposals are sent; the fourth and final preamble slot is
// always the zero-version terminator `00 00 00 00` spec.md §4.7 step 1
// mandates ("the client offers versions decreasing, ending with
// `00 00 00 00`").
var offeredVersions = [3]Version{
	{Major: 5, Minor: 4},
	{Major: 5, Minor: 0},
	{Major: 4, Minor: 4},
}

// MinSupportedVersion / MaxSupportedVersion record the 5.x range the
// message shapes used here are written against. Handshake and Connect do
// not check the agreed version against them: any non-zero agreed
// version, including the offered 4.4, is accepted.
var (
	MinSupportedVersion = Version{Major: 5, Minor: 0}
	MaxSupportedVersion = Version{Major: 5, Minor: 8}
)

// Handshake writes the 20-byte preamble and reads back the agreed
// version, per spec.md §4.7 step 1-2.
func Handshake(rw io.ReadWriter) (Version, error) {
	// The preamble has room for four proposals; only the first three
	// slots carry a real version, and the fourth is left as its
	// zero-initialized `00 00 00 00` terminator.
	var preamble [20]byte
	copy(preamble[0:4], handshakeMagic[:])
	for i, v := range offeredVersions {
		off := 4 + i*4
		preamble[off] = 0
		preamble[off+1] = 0
		preamble[off+2] = v.Minor
		preamble[off+3] = v.Major
	}
	if _, err := rw.Write(preamble[:]); err != nil {
		return Version{}, fmt.Errorf("bolt: writing handshake preamble: %w", err)
	}

	var agreed [4]byte
	if _, err := io.ReadFull(rw, agreed[:]); err != nil {
		return Version{}, fmt.Errorf("bolt: reading agreed version: %w", err)
	}
	major, minor := agreed[3], agreed[2]
	if major == 0 && minor == 0 {
		return Version{}, ErrUnsupportedVersion
	}
	return Version{Major: major, Minor: minor}, nil
}
