package scd

import (
	"testing"

	"frauddwh/testutil"
)

func TestSCDDoesNotImportStagingOrFraud(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ImportsPackage("internal/staging"), "scd reads staged relations only")
	testutil.AssertNoDirectImports(t, ".", testutil.ImportsPackage("internal/fraud"), "history is loaded before detection")
}
