package mutation

import "tickcraft.ai/internal/sim/entity"

// TakeDamage lowers a creature's health. A creature at zero health is removed at the next stitch.
type TakeDamage struct {
	Amount int `msgpack:"amount"`
}

func (TakeDamage) Kind() Kind { return KindTakeDamage }
func (t TakeDamage) Apply(_ *Context, c *entity.MutableCreature) bool {
	if t.Amount <= 0 || c.Health() <= 0 {
		return false
	}
	c.SetHealth(c.Health() - t.Amount)
	return true
}
