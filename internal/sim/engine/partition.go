package engine

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"

	"tickcraft.ai/internal/sim/geom"
)

func entityOwner(id int32, workers int) int {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(id))
	return int(xxh3.Hash(b[:]) % uint64(workers))
}

func cuboidOwner(a geom.CuboidAddress, workers int) int {
	var b [6]byte
	binary.LittleEndian.PutUint16(b[0:], uint16(a.X))
	binary.LittleEndian.PutUint16(b[2:], uint16(a.Y))
	binary.LittleEndian.PutUint16(b[4:], uint16(a.Z))
	return int(xxh3.Hash(b[:]) % uint64(workers))
}
