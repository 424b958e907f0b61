package game

// Score рассчитывает очки за завершенный раунд.
// Проигрыш дает 0, победа - max(0, 7-tries)*10 + max(0, 20 - durationSec/10).
func Score(won bool, tries, durationSec int) int {
	if !won {
		return 0
	}
	return max(0, 7-tries)*10 + max(0, 20-durationSec/10)
}
