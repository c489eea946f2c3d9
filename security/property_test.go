package security

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCapabilityGateAgreesWithSecurityLevel checks that, for any capability
// id and any allow-list, IsCapabilityAllowed never lets Pure through, only
// lets Controlled through when the id is on its own allow-list, and always
// lets Full through.
func TestCapabilityGateAgreesWithSecurityLevel(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("Pure denies, Controlled matches its allow-list, Full allows", prop.ForAll(
		func(id string, allowed []string) bool {
			pure := PureContext()
			if pure.IsCapabilityAllowed(id) {
				return false
			}

			controlled := ControlledContext(allowed)
			want := false
			for _, a := range allowed {
				if a == id {
					want = true
				}
			}
			if controlled.IsCapabilityAllowed(id) != want {
				return false
			}

			full := FullContext()
			return full.IsCapabilityAllowed(id)
		},
		gen.AlphaString(),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestValidateRejectsDangerousCapabilityWithoutMicroVM checks that any
// non-Full context allow-listing a dangerous capability without microVM
// execution is always rejected, and the same context with microVM enabled
// is never rejected for that reason.
func TestValidateRejectsDangerousCapabilityWithoutMicroVM(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	dangerousIDs := []string{"ccos.io.open-file", "ccos.network.http-fetch", "ccos.system.get-env"}

	properties.Property("dangerous capability requires microVM outside Full", prop.ForAll(
		func(idx int) bool {
			id := dangerousIDs[idx%len(dangerousIDs)]

			unsafe := ControlledContext([]string{id})
			unsafe.UseMicroVM = false
			if Validate(unsafe) == nil {
				return false
			}

			safe := ControlledContext([]string{id})
			safe.UseMicroVM = true
			return Validate(safe) == nil
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

// TestContextExposureRequiresExplicitAllowListMembership checks that
// exposure is only granted through one of the three allow-lists, never
// implicitly, and that disabling exposure entirely always denies.
func TestContextExposureRequiresExplicitAllowListMembership(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("exposure follows the exact/prefix/tag allow-lists", prop.ForAll(
		func(id, tag string) bool {
			disabled := PureContext()
			if disabled.IsContextExposureAllowed(id, []string{tag}) {
				return false
			}

			exactOnly := PureContext()
			exactOnly.EnableContextExposureFor(id)
			if !exactOnly.IsContextExposureAllowed(id, nil) {
				return false
			}

			tagOnly := PureContext()
			tagOnly.EnableContextExposureTag(tag)
			return tagOnly.IsContextExposureAllowed(id, []string{tag})
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
