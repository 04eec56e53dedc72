package runtime

import (
	"github.com/motionforge/acl/internal/container"
	"github.com/motionforge/acl/skeleton"
)

type subTrack struct {
	bone    int
	channel skeleton.Channel
}

// layoutSubTracks reconstructs the storage-order sub-track list a
// compressed_tracks buffer was written with, using the has_scale
// bitset to know which bones contributed a scale sub-track.
func layoutSubTracks(h tracksHeader, buf []byte) []subTrack {
	tracks := make([]subTrack, 0, h.numSubTracks)
	for b := 0; b < h.numBones; b++ {
		tracks = append(tracks, subTrack{b, skeleton.ChannelRotation})
		tracks = append(tracks, subTrack{b, skeleton.ChannelTranslation})
		if h.hasScale(buf, b) {
			tracks = append(tracks, subTrack{b, skeleton.ChannelScale})
		}
	}
	return tracks
}

// classifiedTracks partitions subTracks (in the same relative order
// compress.WriteCompressedTracks used) into the three groups every
// other section is indexed by.
type classifiedTracks struct {
	all      []subTrack
	constant []subTrack // constant but not default; indexes constant_track_data
	animated []subTrack // neither default nor constant; indexes clip_range_data / segment data

	isDefault  []bool
	isConstant []bool
}

func classify(h tracksHeader, buf []byte) classifiedTracks {
	all := layoutSubTracks(h, buf)
	c := classifiedTracks{
		all:        all,
		isDefault:  make([]bool, len(all)),
		isConstant: make([]bool, len(all)),
	}
	for i := range all {
		def := container.BitSetGet(buf, int(h.offsetDefaultBitset), i)
		con := container.BitSetGet(buf, int(h.offsetConstantBitset), i)
		c.isDefault[i] = def
		c.isConstant[i] = con
		if def {
			continue
		}
		if con {
			c.constant = append(c.constant, all[i])
		} else {
			c.animated = append(c.animated, all[i])
		}
	}
	return c
}
