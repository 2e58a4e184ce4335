package powerups

// Inventory holds at most one stored power-up.
type Inventory struct {
	held ID
}

func (inv *Inventory) Held() ID { return inv.held }

// TryStore keeps id unless a power-up is already held.
func (inv *Inventory) TryStore(id ID) bool {
	if id == None || inv.held != None {
		return false
	}
	inv.held = id
	return true
}

// Take empties the slot and returns what it held.
func (inv *Inventory) Take() ID {
	id := inv.held
	inv.held = None
	return id
}
