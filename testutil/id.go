package testutil

import "fmt"

// Seq generates predictable UUID-shaped identifiers, counting up from 1.
type Seq struct {
	n    int
	last string
}

// New implements id.ID.
func (s *Seq) New() string {
	s.n++
	s.last = fmt.Sprintf("00000000-0000-4000-8000-%012d", s.n)
	return s.last
}

// Last returns the last identifier that was generated.
func (s *Seq) Last() string {
	return s.last
}

// Fixed always returns the same token. Useful as a multipart boundary.
type Fixed string

func (f Fixed) New() string {
	return string(f)
}
