// Command analyze prints quick, human-readable heuristics about the levels in
// a config directory. For each level it summarizes the deck, the clock and the
// points economy, and tabulates how the streak multiplier and the difficulty
// flip duration evolve as a player strings wins together.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wricardo/memory-match-game/game/config"
	"github.com/wricardo/memory-match-game/game/engine"
)

func main() {
	configDir := flag.String("config-dir", "configs", "Directory containing settings.yaml and levels/")
	streaks := flag.Int("streaks", 5, "Number of consecutive wins to tabulate")
	flag.Parse()

	settings, levels, err := loadLevels(*configDir)
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	for _, level := range levels {
		fmt.Printf("\n=== Analyzing %s ===\n", level.ID)
		analyzeLevel(os.Stdout, level, settings, *streaks)
	}
}

// loadLevels reads settings and level files, falling back to the built-in
// levels when the directory has none.
func loadLevels(configDir string) (engine.Settings, []engine.Level, error) {
	settings, err := config.LoadSettingsFile(filepath.Join(configDir, config.SettingsFile))
	if err != nil {
		return settings, nil, err
	}

	files, err := config.LevelFiles(filepath.Join(configDir, config.LevelsDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return settings, nil, err
	}

	var levels []engine.Level
	for _, file := range files {
		level, err := config.LoadLevelFile(file, settings)
		if err != nil {
			return settings, nil, err
		}
		levels = append(levels, *level)
	}
	if len(levels) == 0 {
		levels = engine.DefaultLevels(settings)
	}
	return settings, levels, nil
}

func analyzeLevel(w io.Writer, level engine.Level, settings engine.Settings, streaks int) {
	cards := level.Pairs * 2
	fmt.Fprintf(w, "Name: %s\n", level.Name)
	fmt.Fprintf(w, "Deck: %d pairs, %d cards\n", level.Pairs, cards)

	if level.Limited() {
		fmt.Fprintf(w, "Clock: %ds (%.1fs per perfect move)\n", level.TimeLimit, float64(level.TimeLimit)/float64(level.Pairs))
	} else {
		fmt.Fprintf(w, "Clock: unlimited\n")
	}

	perfect := level.Pairs * settings.MatchPoints
	fmt.Fprintf(w, "Perfect game: %d moves, %d match points\n", level.Pairs, perfect)
	fmt.Fprintf(w, "Points: +%d win / -%d loss\n", level.PointsReward, level.PointsPenalty)
	if !level.Active {
		fmt.Fprintf(w, "⚠️  Level is inactive\n")
	}

	policy := settings.Streak
	fmt.Fprintf(w, "%-7s %-5s %-6s %-6s %-6s %s\n", "Streak", "Mult", "Win", "Lose", "Total", "Flip")

	total := 0
	for wins := 0; wins <= streaks; wins++ {
		win := engine.Settle(level, policy, wins, engine.StatusWin)
		lose := engine.Settle(level, policy, wins, engine.StatusLose)
		if wins > 0 {
			total += engine.Settle(level, policy, wins-1, engine.StatusWin)
		}
		fmt.Fprintf(w, "%-7d x%-4d %-6s %-6d %-6d %.2fs\n",
			wins, policy.Multiplier(wins), fmt.Sprintf("+%d", win), lose, total,
			engine.FlipDurationFor(level, wins))
	}

	if level.Difficulty {
		fmt.Fprintf(w, "Difficulty: flip duration caps at %.2fs after %d wins\n",
			engine.FlipDurationFor(level, engine.FlipDurationMaxStreak), engine.FlipDurationMaxStreak)
	}
}
