package bot

// PersonalityID selects a tuning profile from the registry
type PersonalityID string

const (
	Balanced   PersonalityID = "balanced"
	Aggressive PersonalityID = "aggressive"
	Cautious   PersonalityID = "cautious"
)

// Personality is a value record of decision weights. Bots consume the
// record, never a dynamic object.
type Personality struct {
	ID PersonalityID

	// RaiseThreshold is the preflop score above which the bot opens or
	// 3-bets.
	RaiseThreshold float64
	// FoldThreshold is the preflop score below which the bot folds to a
	// big raise.
	FoldThreshold float64
	// Aggression scales bet sizes toward the pot-limit cap.
	Aggression float64
	// BluffFrequency is the base chance to bet air on an unbet board.
	BluffFrequency float64
}

var registry = map[PersonalityID]Personality{
	Balanced: {
		ID:             Balanced,
		RaiseThreshold: 0.75,
		FoldThreshold:  0.55,
		Aggression:     0.7,
		BluffFrequency: 0.12,
	},
	Aggressive: {
		ID:             Aggressive,
		RaiseThreshold: 0.68,
		FoldThreshold:  0.48,
		Aggression:     0.95,
		BluffFrequency: 0.25,
	},
	Cautious: {
		ID:             Cautious,
		RaiseThreshold: 0.82,
		FoldThreshold:  0.62,
		Aggression:     0.5,
		BluffFrequency: 0.05,
	},
}

// PersonalityByID looks up a profile, defaulting to Balanced
func PersonalityByID(id PersonalityID) Personality {
	if p, ok := registry[id]; ok {
		return p
	}
	return registry[Balanced]
}

// Personalities lists the registered profile ids
func Personalities() []PersonalityID {
	return []PersonalityID{Balanced, Aggressive, Cautious}
}
