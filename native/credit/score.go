package credit

import "math/big"

// Sub-score weights, in percent. They must sum to 100.
const (
	weightRepayment   = 40
	weightUtilization = 20
	weightSybil       = 20
	weightCrossChain  = 10
	weightGovernance  = 10
)

// The additive sybil model is an unbounded signed score; these constants are
// its fixed extrema and exist solely so the normaliser can re-map the raw
// value onto [0,100]. They must be updated together with the band tables
// below.
const (
	sybilRawMin = -450
	sybilRawMax = 295
)

const (
	// neutralScore is the baseline returned for factors with no history. The
	// engine never errors on missing data; new users are scoreable from their
	// first read.
	neutralScore = 50

	secondsPerDay = 86_400
)

// ScoreBreakdown is the ephemeral result of a score computation. It is
// derived on every read and never persisted.
type ScoreBreakdown struct {
	Repayment   uint64
	Utilization uint64
	Sybil       uint64
	SybilRaw    int64
	CrossChain  uint64
	Governance  uint64
	Overall     uint64
	Tier        Tier
	AprBps      uint64
	MaxLtvBps   uint64
	GraceSecs   uint64
}

// ScoreParams carries the configured thresholds consumed by the sybil
// sub-score. Stake tiers are expressed in the same USD unit as loan amounts.
type ScoreParams struct {
	StakeTier1 *big.Int
	StakeTier2 *big.Int
	StakeTier3 *big.Int
}

// DefaultScoreParams mirrors the genesis parameterisation.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		StakeTier1: big.NewInt(100),
		StakeTier2: big.NewInt(1_000),
		StakeTier3: big.NewInt(10_000),
	}
}

// ScoreEngine computes credit scores as a pure function over the aggregate
// ledger. It holds no state and requires no locking.
type ScoreEngine struct {
	params ScoreParams
}

// NewScoreEngine constructs a score engine with the provided thresholds. Zero
// values fall back to defaults.
func NewScoreEngine(params ScoreParams) *ScoreEngine {
	defaults := DefaultScoreParams()
	if params.StakeTier1 == nil || params.StakeTier1.Sign() <= 0 {
		params.StakeTier1 = defaults.StakeTier1
	}
	if params.StakeTier2 == nil || params.StakeTier2.Sign() <= 0 {
		params.StakeTier2 = defaults.StakeTier2
	}
	if params.StakeTier3 == nil || params.StakeTier3.Sign() <= 0 {
		params.StakeTier3 = defaults.StakeTier3
	}
	return &ScoreEngine{params: params}
}

// Compute derives the full score breakdown for a user at the given unix time.
// The cost is independent of the user's loan history length: every input is an
// incrementally maintained counter.
func (e *ScoreEngine) Compute(profile *UserProfile, agg *AggregateCreditData, now uint64) ScoreBreakdown {
	if profile == nil {
		profile = &UserProfile{}
	}
	if agg == nil {
		agg = &AggregateCreditData{}
	}
	profile.EnsureDefaults()
	agg.EnsureDefaults()

	breakdown := ScoreBreakdown{
		Repayment:   repaymentScore(agg),
		Utilization: utilizationScore(profile, agg),
		CrossChain:  crossChainScore(profile),
		Governance:  governanceScore(profile),
	}
	breakdown.SybilRaw = e.sybilRawScore(profile, now)
	breakdown.Sybil = normalizeSybil(breakdown.SybilRaw)

	weighted := weightRepayment*breakdown.Repayment +
		weightUtilization*breakdown.Utilization +
		weightSybil*breakdown.Sybil +
		weightCrossChain*breakdown.CrossChain +
		weightGovernance*breakdown.Governance
	breakdown.Overall = clampScore((weighted + 50) / 100)

	terms := TermsForScore(breakdown.Overall)
	breakdown.Tier = terms.Tier
	breakdown.AprBps = terms.AprBps
	breakdown.MaxLtvBps = terms.MaxLtvBps
	breakdown.GraceSecs = terms.GraceSeconds
	return breakdown
}

// repaymentScore (S1): 100 * repaid/total - 20 per liquidation, clamped to
// [0,100]. Users with no history sit at the neutral baseline.
func repaymentScore(agg *AggregateCreditData) uint64 {
	if agg.TotalLoans == 0 {
		return neutralScore
	}
	raw := int64(100*agg.RepaidLoans/agg.TotalLoans) - 20*int64(agg.LiquidatedLoans)
	return clampSigned(raw)
}

// utilizationScore (S2): collateralisation-ratio bands, a penalty for
// habitually borrowing at the LTV ceiling, and a bonus for collateral
// diversity.
func utilizationScore(profile *UserProfile, agg *AggregateCreditData) uint64 {
	if agg.TotalBorrowedUsd.Sign() == 0 {
		return neutralScore
	}

	var base int64
	switch {
	case ratioAtLeast(agg.TotalCollateralUsd, agg.TotalBorrowedUsd, 20): // >= 2.0
		base = 100
	case ratioAtLeast(agg.TotalCollateralUsd, agg.TotalBorrowedUsd, 15): // >= 1.5
		base = 75
	case ratioAtLeast(agg.TotalCollateralUsd, agg.TotalBorrowedUsd, 12): // >= 1.2
		base = 50
	case ratioAtLeast(agg.TotalCollateralUsd, agg.TotalBorrowedUsd, 10): // >= 1.0
		base = 25
	default:
		base = 0
	}

	if agg.TotalLoans > 0 {
		base -= int64(40 * agg.HighLtvLoans / agg.TotalLoans)
	}

	switch {
	case len(profile.CollateralAssets) >= 3:
		base += 20
	case len(profile.CollateralAssets) == 2:
		base += 10
	}

	return clampSigned(base)
}

// ratioAtLeast reports whether collateral/borrowed >= threshold/10 without
// leaving integer arithmetic.
func ratioAtLeast(collateral, borrowed *big.Int, thresholdTenths int64) bool {
	lhs := new(big.Int).Mul(collateral, big.NewInt(10))
	rhs := new(big.Int).Mul(borrowed, big.NewInt(thresholdTenths))
	return lhs.Cmp(rhs) >= 0
}

// sybilRawScore (S3, raw): additive signed model over KYC state, wallet age,
// stake and activity. The extrema are declared as sybilRawMin/sybilRawMax.
func (e *ScoreEngine) sybilRawScore(profile *UserProfile, now uint64) int64 {
	var raw int64

	if profile.KycVerified && (profile.KycExpiry == 0 || profile.KycExpiry > now) {
		raw += 150
	} else {
		raw -= 150
	}

	var ageDays uint64
	if profile.FirstSeen > 0 && now > profile.FirstSeen {
		ageDays = (now - profile.FirstSeen) / secondsPerDay
	}
	switch {
	case ageDays < 30:
		raw -= 300
	case ageDays < 90:
		raw -= 200
	case ageDays < 180:
		raw -= 100
	case ageDays < 365:
		raw -= 50
	case ageDays < 730:
		// Settled wallet, no adjustment.
	default:
		raw += 20
	}

	stake := profile.StakedAmount
	switch {
	case stake.Cmp(e.params.StakeTier3) >= 0:
		raw += 75
	case stake.Cmp(e.params.StakeTier2) >= 0:
		raw += 50
	case stake.Cmp(e.params.StakeTier1) >= 0:
		raw += 25
	}

	switch {
	case profile.TxActivityCount >= 1_000:
		raw += 50
	case profile.TxActivityCount >= 200:
		raw += 35
	case profile.TxActivityCount >= 50:
		raw += 25
	case profile.TxActivityCount >= 10:
		raw += 15
	}

	return raw
}

// normalizeSybil linearly re-maps the raw additive score from
// [sybilRawMin, sybilRawMax] onto [0,100], rounding half up.
func normalizeSybil(raw int64) uint64 {
	if raw <= sybilRawMin {
		return 0
	}
	if raw >= sybilRawMax {
		return 100
	}
	span := int64(sybilRawMax - sybilRawMin)
	shifted := raw - sybilRawMin
	return uint64((shifted*200 + span) / (span * 2))
}

// crossChainScore (S4): average of reported per-chain scores with a flat bonus
// for breadth across chains. Zero when nothing has been reported.
func crossChainScore(profile *UserProfile) uint64 {
	if len(profile.ChainScores) == 0 {
		return 0
	}
	var sum uint64
	for _, report := range profile.ChainScores {
		score := report.Score
		if score > 100 {
			score = 100
		}
		sum += score
	}
	avg := sum / uint64(len(profile.ChainScores))
	switch {
	case len(profile.ChainScores) >= 3:
		avg += 10
	case len(profile.ChainScores) == 2:
		avg += 5
	}
	return clampScore(avg)
}

// governanceScore (S5): independently capped banded contributions from votes,
// proposals and delegated power.
func governanceScore(profile *UserProfile) uint64 {
	votes := profile.GovernanceVotes * 2
	if votes > 40 {
		votes = 40
	}
	proposals := profile.GovernanceProps * 10
	if proposals > 30 {
		proposals = 30
	}
	power := profile.DelegatedPowerBps / 100
	if power > 30 {
		power = 30
	}
	return clampScore(votes + proposals + power)
}

func clampScore(v uint64) uint64 {
	if v > 100 {
		return 100
	}
	return v
}

func clampSigned(v int64) uint64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return uint64(v)
}
