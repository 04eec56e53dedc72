package main

import (
	"fmt"

	"github.com/motionforge/acl/qmath"
)

// posePrinter is a runtime.Writer that dumps each bone's decompressed
// transform to stdout, for the sample subcommand's spot checks.
type posePrinter struct{}

func (posePrinter) WriteRotation(bone int, q qmath.Quat) {
	fmt.Printf("bone %3d rotation    (%g, %g, %g, %g)\n", bone, q.X, q.Y, q.Z, q.W)
}

func (posePrinter) WriteTranslation(bone int, v qmath.Vector3) {
	fmt.Printf("bone %3d translation (%g, %g, %g)\n", bone, v.X, v.Y, v.Z)
}

func (posePrinter) WriteScale(bone int, v qmath.Vector3) {
	fmt.Printf("bone %3d scale       (%g, %g, %g)\n", bone, v.X, v.Y, v.Z)
}
