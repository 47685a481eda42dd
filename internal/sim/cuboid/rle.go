package cuboid

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"tickcraft.ai/internal/sim/geom"
)

// EncodeRLE encodes the cuboid's block ids into base64(varint pairs).
// The pairs are (block_id, run_len) repeated, in storage order.
func EncodeRLE(c *Cuboid) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	ids := c.blocks
	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(b))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func DecodeRLE(addr geom.CuboidAddress, b64 string) (*Cuboid, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, 0, Volume)
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b > 0xFFFF {
			return nil, fmt.Errorf("block id too large: %d", b)
		}
		if uint64(len(out))+run > Volume {
			return nil, fmt.Errorf("run overflows cuboid at %d", i)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(b))
		}
	}
	return FromBlocks(addr, out)
}
