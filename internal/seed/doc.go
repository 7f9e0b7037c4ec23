// Package seed loads seed prototypes and writes bootstrap seed files.
//
// A prototype (Descriptor) names the language bundles an operator wants to
// publish. The temporary bootstrap written by WriteTemporary carries only the
// language-language bundle so a runtime can boot far enough to accept
// publishing calls; the final seed uses the same Bootstrap shape with
// published addresses filled in.
package seed
