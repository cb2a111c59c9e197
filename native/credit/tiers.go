package credit

// Tier is the discrete credit bracket derived from the overall score.
type Tier uint8

const (
	TierBronze Tier = iota
	TierSilver
	TierGold
	TierPlatinum
)

// String renders the canonical tier name.
func (t Tier) String() string {
	switch t {
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	case TierPlatinum:
		return "platinum"
	default:
		return "unknown"
	}
}

// Valid reports whether the tier value is within the supported range.
func (t Tier) Valid() bool {
	return t <= TierPlatinum
}

// Terms captures the loan conditions attached to a tier at a given score.
type Terms struct {
	Tier         Tier
	MaxLtvBps    uint64
	AprBps       uint64
	GraceSeconds uint64
}

// tierBand describes one row of the canonical tier table. APR decreases
// linearly from aprMaxBps at the low score edge to aprMinBps at the high edge.
type tierBand struct {
	tier         Tier
	scoreLo      uint64
	scoreHi      uint64
	maxLtvBps    uint64
	aprMaxBps    uint64
	aprMinBps    uint64
	graceSeconds uint64
}

// The canonical tier table: Bronze 0-59, Silver 60-74, Gold 75-89,
// Platinum 90-100, with grace periods 24h/36h/48h/72h.
var tierBands = []tierBand{
	{TierBronze, 0, 59, 5_000, 1_500, 1_000, 24 * 3_600},
	{TierSilver, 60, 74, 7_000, 1_000, 800, 36 * 3_600},
	{TierGold, 75, 89, 8_000, 800, 600, 48 * 3_600},
	{TierPlatinum, 90, 100, 9_000, 600, 400, 72 * 3_600},
}

// TermsForScore maps an overall score onto its tier terms. The tier and the
// LTV ceiling are a step function of the score; the APR interpolates linearly
// inside the tier's band so that two borrowers in the same tier still price
// differently.
func TermsForScore(score uint64) Terms {
	if score > 100 {
		score = 100
	}
	for _, band := range tierBands {
		if score < band.scoreLo || score > band.scoreHi {
			continue
		}
		apr := band.aprMaxBps
		if span := band.scoreHi - band.scoreLo; span > 0 {
			apr -= (band.aprMaxBps - band.aprMinBps) * (score - band.scoreLo) / span
		}
		return Terms{
			Tier:         band.tier,
			MaxLtvBps:    band.maxLtvBps,
			AprBps:       apr,
			GraceSeconds: band.graceSeconds,
		}
	}
	// Unreachable: the bands cover 0-100.
	return Terms{Tier: TierBronze, MaxLtvBps: 5_000, AprBps: 1_500, GraceSeconds: 24 * 3_600}
}

// ParseTier resolves a canonical tier name.
func ParseTier(name string) (Tier, bool) {
	switch name {
	case "bronze":
		return TierBronze, true
	case "silver":
		return TierSilver, true
	case "gold":
		return TierGold, true
	case "platinum":
		return TierPlatinum, true
	default:
		return TierBronze, false
	}
}
