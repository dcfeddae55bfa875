package engine

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// DefaultSymbols is the fallback value pool for text decks
var DefaultSymbols = []string{
	"🎮", "🎯", "🎲", "🎪", "🎨", "🎭", "🎬", "🎸",
	"⚽", "🏀", "🎾", "🏈", "⚾", "🎱", "🏐", "🏉",
	"🌟", "⭐", "✨", "💫", "🌙", "☀️", "🌈", "🔥",
	"🍎", "🍊", "🍋", "🍌", "🍉", "🍇", "🍓", "🍒",
}

// Shuffler is the randomness a deck permutation draws from.
// *rand.Rand from math/rand/v2 satisfies it.
type Shuffler interface {
	IntN(n int) int
}

// NewShuffler returns a ChaCha8 generator seeded from the OS entropy source
func NewShuffler() Shuffler {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewChaCha8(seed))
}

// NewSeededShuffler returns a deterministic generator, for tests and replays
func NewSeededShuffler(seed uint64) Shuffler {
	var s [32]byte
	binary.LittleEndian.PutUint64(s[:8], seed)
	return rand.New(rand.NewChaCha8(s))
}

// GenerateDeck builds 2*pairs cards from distinct pool values and shuffles them
// with an unbiased Fisher-Yates permutation.
func GenerateDeck(pairs int, pool []string, cardType CardType, rng Shuffler) ([]Card, error) {
	if pairs < MinPairs || pairs > MaxPairs {
		return nil, fmt.Errorf("%w: pairs must be between %d and %d, got %d", ErrInvalidConfiguration, MinPairs, MaxPairs, pairs)
	}
	if len(pool) == 0 {
		pool = DefaultSymbols
		cardType = CardText
	}
	if cardType == "" {
		cardType = CardText
	}

	values := distinct(pool)
	if len(values) < pairs {
		return nil, fmt.Errorf("%w: need %d distinct values, pool has %d", ErrInvalidConfiguration, pairs, len(values))
	}
	if rng == nil {
		rng = NewShuffler()
	}

	// pick which values make it onto the board
	shuffleStrings(values, rng)
	values = values[:pairs]

	cards := make([]Card, 0, pairs*2)
	for _, v := range values {
		cards = append(cards, Card{Value: v, Type: cardType}, Card{Value: v, Type: cardType})
	}
	for i := len(cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
	for i := range cards {
		cards[i].Index = i
	}
	return cards, nil
}

func shuffleStrings(s []string, rng Shuffler) {
	for i := len(s) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

func distinct(pool []string) []string {
	seen := make(map[string]bool, len(pool))
	out := make([]string, 0, len(pool))
	for _, v := range pool {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
