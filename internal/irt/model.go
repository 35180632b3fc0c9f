// Package irt implements the logistic item response theory models used by
// the adaptive engine. Every function here is pure and allocation-free.
package irt

import "math"

// D is the logistic scaling constant approximating the normal ogive.
const D = 1.7

// InformationEpsilon is the smallest p·(1−p) for which 3PL information is
// evaluated. Below it the item contributes no information.
const InformationEpsilon = 1e-10

// Probability2PL returns the probability of a correct response under the
// two-parameter logistic model.
func Probability2PL(theta, b, a float64) float64 {
	return 1.0 / (1.0 + math.Exp(-D*a*(theta-b)))
}

// Probability3PL adds a guessing floor c to the 2PL curve.
func Probability3PL(theta, b, a, c float64) float64 {
	return c + (1-c)*Probability2PL(theta, b, a)
}

// Information2PL returns the Fisher information of a 2PL item at theta.
func Information2PL(theta, b, a float64) float64 {
	p := Probability2PL(theta, b, a)
	return D * D * a * a * p * (1 - p)
}

// Information3PL returns the Fisher information of a 3PL item at theta:
//
//	I(θ) = (D·a·(p−c))² · (1−p) / (p · (1−c)²)
//
// It returns 0 when p·(1−p) underflows InformationEpsilon.
func Information3PL(theta, b, a, c float64) float64 {
	p := Probability3PL(theta, b, a, c)
	denom := p * (1 - p)
	if denom < InformationEpsilon {
		return 0
	}
	num := D * a * (p - c)
	return num * num * (1 - p) * (1 - p) / (denom * (1 - c) * (1 - c))
}
