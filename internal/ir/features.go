package ir

import "strings"

// featureGates maps a mnemonic/type-kind prefix to the feature that
// must be enabled before it is legal (spec.md §4.1).
var featureGates = []struct {
	prefix  string
	feature string
}{
	{"atomic.", "atomics:v1"},
	{"vec.", "simd:v1"},
	{"load.vec", "simd:v1"},
	{"store.vec", "simd:v1"},
	{"adt.", "adt:v1"},
	{"fun.", "fun:v1"},
	{"call.fun", "fun:v1"},
	{"closure.", "closure:v1"},
	{"call.closure", "closure:v1"},
	{"coro.", "coro:v1"},
	{"term.resume", "coro:v1"},
	{"term.invoke", "eh:v1"},
	{"term.throw", "eh:v1"},
	{"gc.", "gc:v1"},
	{"sem.", "sem:v1"},
}

// featureDeps lists inter-feature dependencies: closure:v1 requires
// fun:v1 (spec.md §3, §4.3). The mnemonic-level rule that
// sem.match_sum requires adt:v1 is checked by the validator's node
// feature-gate pass.
var featureDeps = map[string]string{
	"closure:v1": "fun:v1",
}

// RequiredFeature returns the feature gating mnemonic, and whether the
// mnemonic is gated at all. Ungated mnemonics (const.*, ptr.sym,
// call.indirect, decl.fn, the CFG/control skeleton, …) return ("",
// false).
func RequiredFeature(mnemonic string) (string, bool) {
	for _, g := range featureGates {
		if strings.HasSuffix(g.prefix, ".") {
			if strings.HasPrefix(mnemonic, g.prefix) {
				return g.feature, true
			}
		} else if mnemonic == g.prefix {
			return g.feature, true
		}
	}
	return "", false
}

// FeatureDependency returns the feature that must also be enabled
// whenever feature is enabled, if any.
func FeatureDependency(feature string) (string, bool) {
	dep, ok := featureDeps[feature]
	return dep, ok
}
