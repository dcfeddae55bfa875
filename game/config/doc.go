// Package config loads memory match levels and operator settings.
//
// Levels live one per file under <dir>/levels and may be YAML or JSON:
//
//	name: Medium
//	num_pairs: 8
//	time_limit: 120
//	points_per_win: 10
//	points_per_loss: 2
//
// The file name (slugified) is the level id unless the file sets one.
// Settings live in <dir>/settings.yaml and carry the webhook target, the
// in-game scoring rules, the streak multiplier table and the outcome messages.
// Missing files fall back to engine.DefaultSettings and engine.DefaultLevels.
package config
