// Command validate checks the level files and settings in a config directory
// (default ../configs). For every level it checks:
//   - YAML/JSON structure and field types
//   - Pair count within the supported range and a usable card value pool
//   - Non-negative time limit, points and flip duration
//   - Unique level ids across files
//
// It also prints warnings for levels that are legal but unlikely to be
// playable, such as a clock shorter than one second per card.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wricardo/memory-match-game/game/config"
	"github.com/wricardo/memory-match-game/game/engine"
)

// minSecondsPerCard is the shortest clock considered playable
const minSecondsPerCard = 1.0

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File     string
	Valid    bool
	Errors   []string
	Warnings []string
	Level    *engine.Level
}

// validateLevel loads one level file against settings and reports on it
func validateLevel(filePath string, settings engine.Settings) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	level, err := config.LoadLevelFile(filePath, settings)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.Level = level

	cards := level.Pairs * 2
	result.Errors = append(result.Errors, fmt.Sprintf("✓ %s (%s): %d pairs, %d cards", level.ID, level.Name, level.Pairs, cards))

	if level.Limited() {
		perCard := float64(level.TimeLimit) / float64(cards)
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Clock: %ds (%.1fs per card)", level.TimeLimit, perCard))
		if perCard < minSecondsPerCard {
			result.Warnings = append(result.Warnings, fmt.Sprintf("time limit allows only %.2fs per card", perCard))
		}
	} else {
		result.Errors = append(result.Errors, "✓ Clock: unlimited")
	}

	result.Errors = append(result.Errors, fmt.Sprintf("✓ Points: +%d win / -%d loss", level.PointsReward, level.PointsPenalty))
	if level.PointsReward == 0 {
		result.Warnings = append(result.Warnings, "winning awards no points")
	}
	if !level.Active {
		result.Warnings = append(result.Warnings, "level is inactive and will not be offered to players")
	}
	if level.Difficulty {
		slowest := engine.FlipDurationFor(*level, engine.FlipDurationMaxStreak)
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Difficulty: flip duration %.2fs → %.2fs", level.FlipDuration, slowest))
	}
	return result
}

// validateDir validates settings and every level file. It returns the
// per-file results and whether everything is valid.
func validateDir(configDir string) ([]ValidationResult, bool, error) {
	settings, err := config.LoadSettingsFile(filepath.Join(configDir, config.SettingsFile))
	if err != nil {
		return []ValidationResult{{File: config.SettingsFile, Valid: false, Errors: []string{err.Error()}}}, false, nil
	}

	files, err := config.LevelFiles(filepath.Join(configDir, config.LevelsDir))
	if err != nil {
		return nil, false, err
	}

	allValid := true
	seen := map[string]string{}
	results := make([]ValidationResult, 0, len(files))
	for _, file := range files {
		result := validateLevel(file, settings)
		if result.Level != nil {
			if other, dup := seen[result.Level.ID]; dup {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("duplicate level id %q (also in %s)", result.Level.ID, other))
			}
			seen[result.Level.ID] = result.File
		}
		if !result.Valid {
			allValid = false
		}
		results = append(results, result)
	}
	return results, allValid, nil
}

// main validates the config directory, printing a concise report and
// exiting with non-zero status if anything is invalid.
func main() {
	configDir := flag.String("config-dir", "../configs", "Directory containing settings.yaml and levels/")
	flag.Parse()

	results, allValid, err := validateDir(*configDir)
	if err != nil {
		fmt.Printf("Error finding level files: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("No level files found; the server will use its built-in levels")
	}

	for _, result := range results {
		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
		for _, w := range result.Warnings {
			fmt.Println("  ⚠️  " + w)
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All levels are valid!")
	} else {
		fmt.Println("❌ Some levels have errors")
		os.Exit(1)
	}
}
