package projection

import (
	"sort"

	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/process"
)

// notify reports the difference between old and the current projected state. Cuboids are
// compared by identity first; only the candidate blocks of a replaced cuboid are compared by
// value. A reverted cuboid with no candidates is scanned in full.
func (p *Projection) notify(old state, candidates map[geom.CuboidAddress]map[geom.BlockAddress]struct{}, reverted map[geom.CuboidAddress]struct{}) {
	cur := p.projected
	l := p.listener

	for _, a := range process.SortedAddresses(old.cuboids) {
		if _, ok := cur.cuboids[a]; !ok && l != nil {
			l.CuboidDidUnload(a)
		}
	}
	for _, a := range process.SortedAddresses(cur.cuboids) {
		c := cur.cuboids[a]
		prev, ok := old.cuboids[a]
		if !ok {
			if l != nil {
				l.CuboidDidLoad(c)
			}
			continue
		}
		if prev == c {
			continue
		}
		var changed []geom.BlockAddress
		if set, known := candidates[a]; known {
			changed = changedAmong(prev, c, set)
		} else if _, rev := reverted[a]; rev {
			changed = changedAll(prev, c)
		}
		if len(changed) > 0 && l != nil {
			l.CuboidDidChange(c, changed)
		}
	}

	auth, proj := p.shadow.entity, cur.entity
	if proj != nil {
		switch {
		case p.notifiedProj == nil:
			if l != nil {
				l.ThisEntityDidLoad(proj)
			}
		case !auth.Equal(p.notifiedAuth) || !proj.Equal(p.notifiedProj):
			if l != nil {
				l.ThisEntityDidChange(auth, proj)
			}
		}
		p.notifiedAuth, p.notifiedProj = auth, proj
	}

	if l == nil {
		return
	}
	for _, id := range process.SortedIDs(old.others) {
		if _, ok := cur.others[id]; !ok {
			l.OtherEntityDidUnload(id)
		}
	}
	for _, id := range process.SortedIDs(cur.others) {
		e := cur.others[id]
		prev, ok := old.others[id]
		switch {
		case !ok:
			l.OtherEntityDidLoad(e)
		case prev != e && !prev.Equal(e):
			l.OtherEntityDidChange(e)
		}
	}
}

func changedAmong(prev, cur *cuboid.Cuboid, set map[geom.BlockAddress]struct{}) []geom.BlockAddress {
	var out []geom.BlockAddress
	for b := range set {
		if prev.Block(b) != cur.Block(b) || prev.Damage(b) != cur.Damage(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index() < out[j].Index() })
	return out
}

func changedAll(prev, cur *cuboid.Cuboid) []geom.BlockAddress {
	var out []geom.BlockAddress
	for i := 0; i < cuboid.Volume; i++ {
		b := geom.BlockFromIndex(i)
		if prev.Block(b) != cur.Block(b) || prev.Damage(b) != cur.Damage(b) {
			out = append(out, b)
		}
	}
	return out
}
