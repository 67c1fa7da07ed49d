package inventory

type Operation string

const (
	OpReserve Operation = "RESERVE"
	OpConfirm Operation = "CONFIRM"
	OpRelease Operation = "RELEASE"
	// OpAdjust restocks (positive) or writes off (negative) available stock.
	OpAdjust Operation = "ADJUST"
)

func (o Operation) String() string { return string(o) }

// Delta is one logical intent against a ledger row. Retrying the same Delta
// after a version conflict re-applies the same intent on the fresh row.
type Delta struct {
	Op       Operation
	Quantity int64
}

func Reserve(q int64) Delta { return Delta{Op: OpReserve, Quantity: q} }
func Confirm(q int64) Delta { return Delta{Op: OpConfirm, Quantity: q} }
func Release(q int64) Delta { return Delta{Op: OpRelease, Quantity: q} }
func Adjust(q int64) Delta  { return Delta{Op: OpAdjust, Quantity: q} }

// Effect is the signed change per column.
type Effect struct {
	Total     int64
	Available int64
	Reserved  int64
}

func (d Delta) Effect() Effect {
	switch d.Op {
	case OpReserve:
		return Effect{Available: -d.Quantity, Reserved: d.Quantity}
	case OpConfirm:
		return Effect{Total: -d.Quantity, Reserved: -d.Quantity}
	case OpRelease:
		return Effect{Available: d.Quantity, Reserved: -d.Quantity}
	case OpAdjust:
		return Effect{Total: d.Quantity, Available: d.Quantity}
	default:
		return Effect{}
	}
}

func (d Delta) Validate() error {
	switch d.Op {
	case OpReserve, OpConfirm, OpRelease:
		if d.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	case OpAdjust:
		if d.Quantity == 0 {
			return ErrInvalidQuantity
		}
	default:
		return ErrInvalidQuantity
	}
	return nil
}
