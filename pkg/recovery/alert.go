package recovery

import "time"

// alertWindow is the trailing window over which error rates are judged.
const alertWindow = 5 * time.Minute

// lifetimeFactor scales the per-minute threshold into the lifetime
// count past which a type always alerts.
const lifetimeFactor = 10

// defaultAlertThreshold applies to types without a specific entry, in
// errors per minute.
const defaultAlertThreshold = 1.0

// defaultAlertThresholds carries the per-type overrides. Rate limit
// rejections are expected noise and get a loose threshold; database and
// authentication failures are serious at low volume.
func defaultAlertThresholds() map[string]float64 {
	return map[string]float64{
		TypeRateLimit:      10.0,
		TypeDatabase:       0.5,
		TypeExternalAPI:    2.0,
		TypeAuthentication: 0.5,
	}
}

// alertPolicy decides when an error type should page someone.
type alertPolicy struct {
	thresholds map[string]float64
}

func newAlertPolicy(overrides map[string]float64) *alertPolicy {
	thresholds := defaultAlertThresholds()
	for errType, perMinute := range overrides {
		thresholds[errType] = perMinute
	}
	return &alertPolicy{thresholds: thresholds}
}

func (p *alertPolicy) threshold(errType string) float64 {
	if thr, ok := p.thresholds[errType]; ok {
		return thr
	}
	return defaultAlertThreshold
}

// shouldAlert reports whether an error type crossed its alert line:
// either the trailing-window rate exceeds the per-minute threshold, or
// the lifetime count exceeds lifetimeFactor times the threshold.
func (p *alertPolicy) shouldAlert(errType string, recentCount int, lifetime uint64) bool {
	thr := p.threshold(errType)
	if thr <= 0 {
		return recentCount > 0
	}
	ratePerMinute := float64(recentCount) / alertWindow.Minutes()
	if ratePerMinute > thr {
		return true
	}
	return float64(lifetime) > thr*lifetimeFactor
}
