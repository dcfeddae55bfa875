package main

import (
	"github.com/wricardo/memory-match-game/game/service"
)

// MemoryStrategy remembers every value it has seen and flips known pairs first
type MemoryStrategy struct {
	seen    map[int]string // card index -> value
	matched map[int]bool
	size    int
}

func NewMemoryStrategy(view *service.SessionView) *MemoryStrategy {
	s := &MemoryStrategy{
		seen:    make(map[int]string),
		matched: make(map[int]bool),
	}
	s.Observe(view, nil)
	return s
}

// Observe records the board and any cards revealed by the last flip
func (s *MemoryStrategy) Observe(view *service.SessionView, revealed []service.CardView) {
	if view != nil {
		s.size = len(view.Cards)
		for _, c := range view.Cards {
			if c.Value != "" {
				s.seen[c.Index] = c.Value
			}
			if c.Matched {
				s.matched[c.Index] = true
			}
		}
	}
	for _, c := range revealed {
		if c.Value != "" {
			s.seen[c.Index] = c.Value
		}
	}
}

// NextPair picks the next two cards to flip. ok is false when nothing is left.
//
// Order of preference:
//   - a pair whose two values are both known
//   - two cards never seen
//   - an unseen card with a known unmatched card
func (s *MemoryStrategy) NextPair() (first, second int, ok bool) {
	byValue := make(map[string]int)
	var unseen, known []int
	for i := 0; i < s.size; i++ {
		if s.matched[i] {
			continue
		}
		v, isSeen := s.seen[i]
		if !isSeen {
			unseen = append(unseen, i)
			continue
		}
		if j, dup := byValue[v]; dup {
			return j, i, true
		}
		byValue[v] = i
		known = append(known, i)
	}

	switch {
	case len(unseen) >= 2:
		return unseen[0], unseen[1], true
	case len(unseen) == 1 && len(known) > 0:
		return known[0], unseen[0], true
	}
	return 0, 0, false
}

// Known is the number of unmatched cards whose value is remembered
func (s *MemoryStrategy) Known() int {
	n := 0
	for i := range s.seen {
		if !s.matched[i] {
			n++
		}
	}
	return n
}
