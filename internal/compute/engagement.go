package compute

// engagementScoreV1 is the original composite score (spec §4.3 step 9):
// activity plus session plus 24h event-type frequency, capped at 100.
func engagementScoreV1(countHour int64, activeSession bool, eventFreq24h int64) float64 {
	score := 0.0

	switch {
	case countHour > 5:
		score += 30
	case countHour > 2:
		score += 15
	}

	if activeSession {
		score += 20
	}

	if eventFreq24h > 10 {
		score += 50
	}

	return min100(score)
}

// engagementScoreV2 is the variant-B algorithm: four weighted components
// (activity, session, trend, purchase behavior), capped at 100.
func engagementScoreV2(countHour, count24h int64, activeSession bool, trend, purchaseRate float64) float64 {
	score := 0.0

	switch {
	case count24h > 20:
		score += 40
	case count24h > 10:
		score += 30
	case count24h > 5:
		score += 20
	case countHour > 0:
		score += 10
	}

	if activeSession {
		score += 20
	}

	switch {
	case trend > 0.5:
		score += 20
	case trend > 0.2:
		score += 10
	}

	switch {
	case purchaseRate > 0.1:
		score += 20
	case purchaseRate > 0.05:
		score += 10
	}

	return min100(score)
}

func min100(score float64) float64 {
	if score > 100 {
		return 100
	}
	return score
}
