package savigp

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// expectationFunc returns E[log p(y|f)] for f ~ N(mean, variance) together
// with its derivatives with respect to mean and variance.
type expectationFunc func(y, mean, variance float64) (value, dMean, dVariance float64)

// posterior is a family of variational distributions q(u) over the inducing
// outputs. All state lives in a flat parameter vector so the optimiser can
// move it directly.
type posterior interface {
	kind() string
	params() []float64
	setParams(p []float64)

	// elbo evaluates the evidence lower bound at parameters p for a fixed
	// kernel state. When grad is non-nil it receives dELBO/dp.
	elbo(p []float64, ks *kernelState, y []float64, ell expectationFunc, grad []float64) float64

	// predict returns the mean and variance of f at a point with projection
	// a = Kzz^-1 k_z* and conditional variance kt.
	predict(a []float64, kt float64) (mean, variance float64)

	names() []string
	values() []float64
}

// crossTerm is E_q[log p(u)] for one component, without the trace term.
func crossTerm(ks *kernelState, m *mat.VecDense, kinvM *mat.VecDense) float64 {
	size := float64(m.Len())

	return -0.5 * (size*log2Pi + ks.logDet + mat.Dot(m, kinvM))
}

//////
// Diagonal mixture.
//////

// diagMixture is a mixture of K Gaussians with diagonal covariances.
//
// Parameter layout: K×M means, K×M log variances, K unconstrained weights
// (mixture proportions are their softmax).
type diagMixture struct {
	k, m  int
	theta []float64
}

func newDiagMixture(components, size int, rng *rand.Rand) *diagMixture {
	d := &diagMixture{k: components, m: size, theta: make([]float64, 2*components*size+components)}

	means, _, _ := d.unpack(d.theta)
	for c := range means {
		for j := range means[c] {
			means[c][j] = rng.Float64()*2 - 1
		}
	}

	return d
}

// unpack returns views into p.
func (d *diagMixture) unpack(p []float64) (means, logS [][]float64, w []float64) {
	means = make([][]float64, d.k)
	logS = make([][]float64, d.k)

	for c := 0; c < d.k; c++ {
		means[c] = p[c*d.m : (c+1)*d.m]
		logS[c] = p[(d.k+c)*d.m : (d.k+c+1)*d.m]
	}

	return means, logS, p[2*d.k*d.m:]
}

func (d *diagMixture) kind() string { return "savigp.Diag" }

func (d *diagMixture) params() []float64 { return append([]float64(nil), d.theta...) }

func (d *diagMixture) setParams(p []float64) {
	copy(d.theta, p)

	_, logS, _ := d.unpack(d.theta)
	for c := range logS {
		for j := range logS[c] {
			logS[c][j] = clampLog(logS[c][j])
		}
	}
}

func (d *diagMixture) elbo(p []float64, ks *kernelState, y []float64, ell expectationFunc, grad []float64) float64 {
	means, logS, w := d.unpack(p)
	pi := softmax(w)
	n := len(y)

	kinvDiag := make([]float64, d.m)
	for j := range kinvDiag {
		kinvDiag[j] = ks.kinv.At(j, j)
	}

	var gMeans, gLogS [][]float64

	var gW []float64

	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}

		gMeans, gLogS, gW = d.unpack(grad)
	}

	dMean := make([]float64, n)
	dVar := make([]float64, n)
	f := make([]float64, d.k)

	for c := 0; c < d.k; c++ {
		s := make([]float64, d.m)
		for j := range s {
			s[j] = math.Exp(clampLog(logS[c][j]))
		}

		mv := mat.NewVecDense(d.m, means[c])

		var mu, q mat.VecDense
		mu.MulVec(ks.a, mv)
		q.MulVec(ks.a2, mat.NewVecDense(d.m, s))

		var ellSum float64

		for i := 0; i < n; i++ {
			v, gm, gv := ell(y[i], mu.AtVec(i), math.Max(ks.kt[i]+q.AtVec(i), varianceFloor))
			ellSum += v
			dMean[i], dVar[i] = gm, gv
		}

		var kinvM mat.VecDense
		kinvM.MulVec(ks.kinv, mv)

		f[c] = ellSum + crossTerm(ks, mv, &kinvM) - 0.5*floats.Dot(kinvDiag, s)

		if grad == nil {
			continue
		}

		var gm, gs mat.VecDense
		gm.MulVec(ks.a.T(), mat.NewVecDense(n, dMean))
		gs.MulVec(ks.a2.T(), mat.NewVecDense(n, dVar))

		for j := 0; j < d.m; j++ {
			gMeans[c][j] = pi[c] * (gm.AtVec(j) - kinvM.AtVec(j))
			gLogS[c][j] = pi[c] * s[j] * (gs.AtVec(j) - 0.5*kinvDiag[j])
		}
	}

	total := floats.Dot(pi, f)

	if grad != nil {
		for c := range gW {
			gW[c] = pi[c] * (f[c] - total)
		}

		hGrad := make([]float64, len(p))
		numericalGradient(hGrad, d.entropyBound, p)
		floats.Add(grad, hGrad)
	}

	return total + d.entropyBound(p)
}

// entropyBound is the Jensen lower bound on the mixture entropy:
//
//	-sum_k pi_k log sum_l pi_l N(m_k; m_l, S_k + S_l)
func (d *diagMixture) entropyBound(p []float64) float64 {
	means, logS, w := d.unpack(p)
	pi := softmax(w)

	terms := make([]float64, d.k)

	var h float64

	for k := 0; k < d.k; k++ {
		for l := 0; l < d.k; l++ {
			var logN float64

			for j := 0; j < d.m; j++ {
				v := math.Exp(clampLog(logS[k][j])) + math.Exp(clampLog(logS[l][j]))
				diff := means[k][j] - means[l][j]
				logN -= 0.5 * (diff*diff/v + log2Pi + math.Log(v))
			}

			terms[l] = math.Log(pi[l]) + logN
		}

		h -= pi[k] * floats.LogSumExp(terms)
	}

	return h
}

func (d *diagMixture) predict(a []float64, kt float64) (float64, float64) {
	means, logS, w := d.unpack(d.theta)
	pi := softmax(w)

	var mean, second float64

	for c := 0; c < d.k; c++ {
		mu := floats.Dot(a, means[c])

		v := kt
		for j, aj := range a {
			v += aj * aj * math.Exp(logS[c][j])
		}

		mean += pi[c] * mu
		second += pi[c] * (v + mu*mu)
	}

	return mean, math.Max(second-mean*mean, varianceFloor)
}

func (d *diagMixture) names() []string {
	names := make([]string, 0, len(d.theta))

	for c := 0; c < d.k; c++ {
		for j := 0; j < d.m; j++ {
			names = append(names, fmt.Sprintf("mog_m_%d_%d", c, j))
		}
	}

	for c := 0; c < d.k; c++ {
		for j := 0; j < d.m; j++ {
			names = append(names, fmt.Sprintf("mog_s_%d_%d", c, j))
		}
	}

	for c := 0; c < d.k; c++ {
		names = append(names, fmt.Sprintf("mog_pi_%d", c))
	}

	return names
}

func (d *diagMixture) values() []float64 {
	means, logS, w := d.unpack(d.theta)
	values := make([]float64, 0, len(d.theta))

	for c := range means {
		values = append(values, means[c]...)
	}

	for c := range logS {
		for _, ls := range logS[c] {
			values = append(values, math.Exp(ls))
		}
	}

	return append(values, softmax(w)...)
}

//////
// Single full-covariance Gaussian.
//////

// fullGaussian is a single Gaussian with covariance S = L Lᵀ.
//
// Parameter layout: M means, then the lower triangle of L row by row with
// diagonal entries stored as logs.
type fullGaussian struct {
	m     int
	theta []float64
}

func newFullGaussian(size int) *fullGaussian {
	// L = I, so every log-diagonal entry is zero already.
	return &fullGaussian{m: size, theta: make([]float64, size+size*(size+1)/2)}
}

func (g *fullGaussian) kind() string { return "savigp.Full" }

func (g *fullGaussian) params() []float64 { return append([]float64(nil), g.theta...) }

func (g *fullGaussian) setParams(p []float64) { copy(g.theta, p) }

// unpack returns the mean (a view into p) and a freshly built L.
func (g *fullGaussian) unpack(p []float64) ([]float64, *mat.Dense) {
	l := mat.NewDense(g.m, g.m, nil)

	idx := g.m
	for i := 0; i < g.m; i++ {
		for j := 0; j <= i; j++ {
			v := p[idx]
			if i == j {
				v = math.Exp(clampLog(v))
			}

			l.Set(i, j, v)
			idx++
		}
	}

	return p[:g.m], l
}

func (g *fullGaussian) elbo(p []float64, ks *kernelState, y []float64, ell expectationFunc, grad []float64) float64 {
	mean, l := g.unpack(p)
	n := len(y)
	mv := mat.NewVecDense(g.m, mean)

	var mu mat.VecDense
	mu.MulVec(ks.a, mv)

	var al mat.Dense
	al.Mul(ks.a, l)

	dMean := make([]float64, n)
	dVar := make([]float64, n)

	var ellSum float64

	for i := 0; i < n; i++ {
		row := al.RawRowView(i)
		v, gm, gv := ell(y[i], mu.AtVec(i), math.Max(ks.kt[i]+floats.Dot(row, row), varianceFloor))
		ellSum += v
		dMean[i], dVar[i] = gm, gv
	}

	var kinvM mat.VecDense
	kinvM.MulVec(ks.kinv, mv)

	var kinvL mat.Dense
	kinvL.Mul(ks.kinv, l)

	trace := 0.0
	entropy := 0.5 * float64(g.m) * (1 + log2Pi)

	for i := 0; i < g.m; i++ {
		for j := 0; j <= i; j++ {
			trace += kinvL.At(i, j) * l.At(i, j)
		}

		entropy += math.Log(l.At(i, i))
	}

	total := ellSum + crossTerm(ks, mv, &kinvM) - 0.5*trace + entropy

	if grad == nil {
		return total
	}

	var gm mat.VecDense
	gm.MulVec(ks.a.T(), mat.NewVecDense(n, dMean))

	for j := 0; j < g.m; j++ {
		grad[j] = gm.AtVec(j) - kinvM.AtVec(j)
	}

	// dELBO/dL = 2 Aᵀ diag(dVar) A L - Kzz^-1 L + diag(1/L_ii)
	scaled := mat.DenseCopyOf(&al)
	for i := 0; i < n; i++ {
		floats.Scale(dVar[i], scaled.RawRowView(i))
	}

	var gl mat.Dense
	gl.Mul(ks.a.T(), scaled)
	gl.Scale(2, &gl)
	gl.Sub(&gl, &kinvL)

	idx := g.m
	for i := 0; i < g.m; i++ {
		for j := 0; j <= i; j++ {
			v := gl.At(i, j)
			if i == j {
				lii := l.At(i, i)
				v = (v + 1/lii) * lii
			}

			grad[idx] = v
			idx++
		}
	}

	return total
}

func (g *fullGaussian) predict(a []float64, kt float64) (float64, float64) {
	mean, l := g.unpack(g.theta)

	v := kt
	for j := 0; j < g.m; j++ {
		var t float64
		for i := j; i < g.m; i++ {
			t += a[i] * l.At(i, j)
		}

		v += t * t
	}

	return floats.Dot(a, mean), math.Max(v, varianceFloor)
}

func (g *fullGaussian) names() []string {
	names := make([]string, 0, len(g.theta))
	for j := 0; j < g.m; j++ {
		names = append(names, fmt.Sprintf("mog_m_0_%d", j))
	}

	for i := 0; i < g.m; i++ {
		for j := 0; j <= i; j++ {
			names = append(names, fmt.Sprintf("mog_L_%d_%d", i, j))
		}
	}

	return names
}

func (g *fullGaussian) values() []float64 {
	mean, l := g.unpack(g.theta)
	values := append([]float64(nil), mean...)

	for i := 0; i < g.m; i++ {
		for j := 0; j <= i; j++ {
			values = append(values, l.At(i, j))
		}
	}

	return values
}
