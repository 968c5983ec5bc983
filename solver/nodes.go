package solver

// Nodes is the per-point storage contract a concrete solver registers
// with the facade. The exchange engine reads owned-point values through
// it when packing and writes halo values through it when unpacking; the
// CFL controller reads and writes the local CFL and reads the
// under-relaxation factor computed by the physics.
//
// Halo entries (local index at or beyond the topology's owned count) are
// written only by CompleteComms/CompletePeriodicComms for the kind being
// exchanged and read everywhere else, so no locking is needed.
type Nodes interface {
	NVar() int
	NDim() int

	Solution(i int) []float64
	SetSolution(i int, v []float64)
	SolutionOld(i int) []float64
	SetSolutionOld(i int, v []float64)

	UndividedLaplacian(i int) []float64
	SetUndividedLaplacian(i int, v []float64)
	Limiter(i int) []float64
	SetLimiter(i int, v []float64)

	MaxEigenvalue(i int) float64
	SetMaxEigenvalue(i int, v float64)
	Sensor(i int) float64
	SetSensor(i int, v float64)

	// Gradient rows are indexed by variable; each row has NDim entries
	Gradient(i, iVar int) []float64
	SetGradient(i, iVar int, g []float64)

	GridVelocity(i int) []float64
	SetGridVelocity(i int, v []float64)

	LocalCFL(i int) float64
	SetLocalCFL(i int, v float64)
	UnderRelaxation(i int) float64
	SetUnderRelaxation(i int, v float64)

	// BGSSolution is the snapshot taken at the last outer multizone
	// iteration, the reference the BGS residuals measure against
	BGSSolution(i int) []float64
	SetBGSSolution(i int, v []float64)
}

// BaseNodes is a dense implementation of Nodes sized at construction.
// Concrete solvers embed it and add their own physics storage.
type BaseNodes struct {
	nVar, nDim, nPoint int

	solution, solutionOld []float64
	undLapl, limiter      []float64
	maxEig, sensor        []float64
	gradient              []float64 // nPoint x nVar x nDim
	gridVel               []float64
	localCFL              []float64
	underRelax            []float64
	bgsSolution           []float64
}

// NewNodes allocates node storage for nPoint points with nVar solution
// variables in nDim dimensions. Every local CFL starts at cfl0 and every
// under-relaxation factor at one.
func NewNodes(nPoint, nVar, nDim int, cfl0 float64) (b *BaseNodes) {
	b = &BaseNodes{
		nVar:        nVar,
		nDim:        nDim,
		nPoint:      nPoint,
		solution:    make([]float64, nPoint*nVar),
		solutionOld: make([]float64, nPoint*nVar),
		undLapl:     make([]float64, nPoint*nVar),
		limiter:     make([]float64, nPoint*nVar),
		maxEig:      make([]float64, nPoint),
		sensor:      make([]float64, nPoint),
		gradient:    make([]float64, nPoint*nVar*nDim),
		gridVel:     make([]float64, nPoint*nDim),
		localCFL:    make([]float64, nPoint),
		underRelax:  make([]float64, nPoint),
		bgsSolution: make([]float64, nPoint*nVar),
	}
	for i := 0; i < nPoint; i++ {
		b.localCFL[i] = cfl0
		b.underRelax[i] = 1
	}
	return
}

func (b *BaseNodes) NVar() int { return b.nVar }
func (b *BaseNodes) NDim() int { return b.nDim }

func (b *BaseNodes) Solution(i int) []float64 {
	return b.solution[i*b.nVar : (i+1)*b.nVar]
}
func (b *BaseNodes) SetSolution(i int, v []float64) {
	copy(b.solution[i*b.nVar:(i+1)*b.nVar], v)
}
func (b *BaseNodes) SolutionOld(i int) []float64 {
	return b.solutionOld[i*b.nVar : (i+1)*b.nVar]
}
func (b *BaseNodes) SetSolutionOld(i int, v []float64) {
	copy(b.solutionOld[i*b.nVar:(i+1)*b.nVar], v)
}

func (b *BaseNodes) UndividedLaplacian(i int) []float64 {
	return b.undLapl[i*b.nVar : (i+1)*b.nVar]
}
func (b *BaseNodes) SetUndividedLaplacian(i int, v []float64) {
	copy(b.undLapl[i*b.nVar:(i+1)*b.nVar], v)
}
func (b *BaseNodes) Limiter(i int) []float64 {
	return b.limiter[i*b.nVar : (i+1)*b.nVar]
}
func (b *BaseNodes) SetLimiter(i int, v []float64) {
	copy(b.limiter[i*b.nVar:(i+1)*b.nVar], v)
}

func (b *BaseNodes) MaxEigenvalue(i int) float64       { return b.maxEig[i] }
func (b *BaseNodes) SetMaxEigenvalue(i int, v float64) { b.maxEig[i] = v }
func (b *BaseNodes) Sensor(i int) float64              { return b.sensor[i] }
func (b *BaseNodes) SetSensor(i int, v float64)        { b.sensor[i] = v }

func (b *BaseNodes) Gradient(i, iVar int) []float64 {
	off := (i*b.nVar + iVar) * b.nDim
	return b.gradient[off : off+b.nDim]
}
func (b *BaseNodes) SetGradient(i, iVar int, g []float64) {
	off := (i*b.nVar + iVar) * b.nDim
	copy(b.gradient[off:off+b.nDim], g)
}

func (b *BaseNodes) GridVelocity(i int) []float64 {
	return b.gridVel[i*b.nDim : (i+1)*b.nDim]
}
func (b *BaseNodes) SetGridVelocity(i int, v []float64) {
	copy(b.gridVel[i*b.nDim:(i+1)*b.nDim], v)
}

func (b *BaseNodes) LocalCFL(i int) float64              { return b.localCFL[i] }
func (b *BaseNodes) SetLocalCFL(i int, v float64)        { b.localCFL[i] = v }
func (b *BaseNodes) UnderRelaxation(i int) float64       { return b.underRelax[i] }
func (b *BaseNodes) SetUnderRelaxation(i int, v float64) { b.underRelax[i] = v }

func (b *BaseNodes) BGSSolution(i int) []float64 {
	return b.bgsSolution[i*b.nVar : (i+1)*b.nVar]
}
func (b *BaseNodes) SetBGSSolution(i int, v []float64) {
	copy(b.bgsSolution[i*b.nVar:(i+1)*b.nVar], v)
}
