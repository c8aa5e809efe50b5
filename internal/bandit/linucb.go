package bandit

import (
	"fmt"
	"math"
	"sync"
)

// featureDim is the fixed length of φ(ctx) per spec.md §4.7.
const featureDim = 8

type vector [featureDim]float64

type matrix [featureDim][featureDim]float64

// ContextSnapshot is the subset of a context LinUCB reads to build its
// feature vector. Fields are typed versions of the ContextMap keys hour,
// batteryLevel, isCharging, isWeekend and motionState rather than the raw
// string map, since LinUCB needs typed values to compute sin/cos and
// comparisons.
type ContextSnapshot struct {
	Hour         int // 0-23
	BatteryLevel int // 0-100
	IsCharging   bool
	IsWeekend    bool
	MotionState  string // "stationary", "active", "vehicle", ...
}

// Featurize builds φ(ctx) in the fixed order spec.md §4.7 mandates:
// [sin(2π·hour/24), cos(2π·hour/24), battery/100, charging, weekend,
// stationary, active, vehicle].
func Featurize(ctx ContextSnapshot) vector {
	angle := 2 * math.Pi * float64(ctx.Hour) / 24
	return vector{
		math.Sin(angle),
		math.Cos(angle),
		float64(ctx.BatteryLevel) / 100,
		boolToFloat(ctx.IsCharging),
		boolToFloat(ctx.IsWeekend),
		boolToFloat(ctx.MotionState == "stationary"),
		boolToFloat(ctx.MotionState == "active"),
		boolToFloat(ctx.MotionState == "vehicle"),
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func identity() matrix {
	var m matrix
	for i := 0; i < featureDim; i++ {
		m[i][i] = 1
	}
	return m
}

type linArm struct {
	A matrix
	b vector
}

func newLinArm() *linArm {
	return &linArm{A: identity()}
}

// LinUCB is a contextual bandit over actionId-keyed arms, each carrying
// its own A (featureDim x featureDim) and b (featureDim) accumulators.
// There is no linear-algebra library anywhere in the example corpus, so
// the A⁻¹-dependent quantities (θ = A⁻¹b and the UCB confidence term)
// are solved via a hand-rolled Cholesky decomposition rather than an
// explicit matrix inverse — A is always symmetric positive-definite
// since it starts at the identity and only receives rank-1 x·xᵀ updates.
type LinUCB struct {
	mu    sync.Mutex
	alpha float64
	arms  map[string]*linArm
}

// NewLinUCB creates a LinUCB bandit with the given exploration
// coefficient alpha.
func NewLinUCB(alpha float64) *LinUCB {
	return &LinUCB{alpha: alpha, arms: make(map[string]*linArm)}
}

// Select scores every candidate arm's UCB = θᵀx + α·sqrt(xᵀA⁻¹x) against
// the given context and returns the argmax index. Returns NoSelection
// for an empty candidate list.
func (l *LinUCB) Select(candidates []string, ctx ContextSnapshot) int {
	if len(candidates) == 0 {
		return NoSelection
	}
	x := Featurize(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	bestIdx := 0
	bestScore := math.Inf(-1)
	for i, actionID := range candidates {
		arm := l.armLocked(actionID)
		score := arm.ucbScore(x, l.alpha)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return bestIdx
}

// Update folds a reward observation for actionID under the given
// context into that arm's A and b accumulators: A += x·xᵀ, b += reward·x.
func (l *LinUCB) Update(actionID string, ctx ContextSnapshot, reward float64) {
	x := Featurize(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	arm := l.armLocked(actionID)
	for i := 0; i < featureDim; i++ {
		for j := 0; j < featureDim; j++ {
			arm.A[i][j] += x[i] * x[j]
		}
		arm.b[i] += reward * x[i]
	}
}

func (l *LinUCB) armLocked(actionID string) *linArm {
	arm, ok := l.arms[actionID]
	if !ok {
		arm = newLinArm()
		l.arms[actionID] = arm
	}
	return arm
}

// ucbScore computes θᵀx + α·sqrt(xᵀA⁻¹x) by solving two triangular
// systems against the Cholesky factor of A rather than forming A⁻¹.
func (arm *linArm) ucbScore(x vector, alpha float64) float64 {
	L, ok := cholesky(arm.A)
	if !ok {
		// A is never supposed to lose positive-definiteness (it starts
		// at I and only accumulates rank-1 PSD updates), but guard
		// against float drift rather than panic mid-selection.
		return dot(arm.b, x)
	}
	theta := solveCholesky(L, arm.b)
	y := solveCholesky(L, x)
	variance := dot(x, y)
	if variance < 0 {
		variance = 0
	}
	return dot(theta, x) + alpha*math.Sqrt(variance)
}

func dot(a, b vector) float64 {
	sum := 0.0
	for i := 0; i < featureDim; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// cholesky computes the lower-triangular L such that A = L·Lᵀ. Reports
// false if A is not (numerically) positive-definite.
func cholesky(a matrix) (matrix, bool) {
	var l matrix
	for i := 0; i < featureDim; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i][j]
			for k := 0; k < j; k++ {
				sum -= l[i][k] * l[j][k]
			}
			if i == j {
				if sum <= 0 {
					return l, false
				}
				l[i][j] = math.Sqrt(sum)
			} else {
				l[i][j] = sum / l[j][j]
			}
		}
	}
	return l, true
}

// solveCholesky solves L·Lᵀ·x = rhs via forward then backward
// substitution.
func solveCholesky(l matrix, rhs vector) vector {
	var y vector
	for i := 0; i < featureDim; i++ {
		sum := rhs[i]
		for k := 0; k < i; k++ {
			sum -= l[i][k] * y[k]
		}
		y[i] = sum / l[i][i]
	}

	var x vector
	for i := featureDim - 1; i >= 0; i-- {
		sum := y[i]
		for k := i + 1; k < featureDim; k++ {
			sum -= l[k][i] * x[k]
		}
		x[i] = sum / l[i][i]
	}
	return x
}

// LinArmSnapshot is the exportable state of one arm, used by
// Engine.ExportBandit/ImportBandit.
type LinArmSnapshot struct {
	A [featureDim][featureDim]float64 `json:"a"`
	B [featureDim]float64             `json:"b"`
}

// Snapshot returns a copy of every arm's (A, b) state, keyed by action id.
func (l *LinUCB) Snapshot() map[string]LinArmSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]LinArmSnapshot, len(l.arms))
	for id, arm := range l.arms {
		out[id] = LinArmSnapshot{A: arm.A, B: arm.b}
	}
	return out
}

// LoadSnapshot replaces the current arm state wholesale.
func (l *LinUCB) LoadSnapshot(snap map[string]LinArmSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.arms = make(map[string]*linArm, len(snap))
	for id, s := range snap {
		l.arms[id] = &linArm{A: matrix(s.A), b: vector(s.B)}
	}
}

// String renders a compact debugging summary, e.g. for CLI export.
func (l *LinUCB) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprintf("LinUCB{alpha=%.3f, arms=%d}", l.alpha, len(l.arms))
}
