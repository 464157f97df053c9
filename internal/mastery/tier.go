package mastery

import "fmt"

// Tier is a difficulty tier. Mastered is the terminal marker produced by
// the state machine; it is never stored as a record's difficulty.
type Tier int

const (
	Easy Tier = iota
	Medium
	Hard
	Mastered
)

// Difficulties returns the three question difficulties in ascending order.
func Difficulties() []Tier {
	return []Tier{Easy, Medium, Hard}
}

func (t Tier) String() string {
	switch t {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	case Mastered:
		return "mastered"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// IsDifficulty reports whether t is one of Easy, Medium, Hard.
func (t Tier) IsDifficulty() bool {
	return t >= Easy && t <= Hard
}

// Multiplier is the mastery weight applied to answers at tier t.
func (t Tier) Multiplier() float64 {
	switch t {
	case Medium:
		return 1.2
	case Hard, Mastered:
		return 1.5
	default:
		return 1.0
	}
}

// ParseTier parses the String form of a tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "easy":
		return Easy, nil
	case "medium":
		return Medium, nil
	case "hard":
		return Hard, nil
	case "mastered":
		return Mastered, nil
	}
	return Easy, fmt.Errorf("unknown tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
