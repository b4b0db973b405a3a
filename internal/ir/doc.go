// Package ir models lifted method bodies for dispatch recovery.
//
// A Program holds classes and methods; each concrete Method exposes a Body
// made of basic blocks of typed statements over SSA locals. Front ends
// (internal/compiler, internal/gossa) build Programs; the engine reads them.
//
// ir imports nothing internal, so every other package can depend on it.
//
// Key constraints:
//   - Local identity is the pointer, never the name
//   - A Body handed out by a Program is never mutated afterwards
//   - Rendering and fingerprinting are deterministic
package ir
