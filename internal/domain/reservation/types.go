package reservation

type Status string

const (
	StatusHeld      Status = "HELD"
	StatusConfirmed Status = "CONFIRMED"
	StatusReleased  Status = "RELEASED"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	switch s {
	case StatusHeld, StatusConfirmed, StatusReleased:
		return true
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusReleased
}
