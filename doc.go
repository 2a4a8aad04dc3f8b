// Package nomad implements the algorithmic core of a Mesh Adaptive Direct
// Search (MADS) blackbox optimizer: the numeric primitives, the evaluated
// point cache, the progressive barrier, the mesh, and the blackbox
// evaluation contract that the nomad/mads, nomad/queue, nomad/coop,
// nomad/psd and nomad/ssd packages build on.
package nomad
