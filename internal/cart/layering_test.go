package cart

import (
	"testing"

	"ecocart/testutil"
)

// TestStoresDoNotReachTransport keeps the state stores usable from the CLI
// without pulling in the HTTP surface.
func TestStoresDoNotReachTransport(t *testing.T) {
	for _, pattern := range []string{"ecocart/internal/cart", "ecocart/internal/session", "ecocart/internal/prefs"} {
		testutil.AssertDeps(t, pattern,
			testutil.Rule{Reason: "stores must not depend on the storefront server", Forbidden: testutil.Within("internal/server")},
			testutil.Rule{Reason: "stores must not depend on the route guard", Forbidden: testutil.Within("internal/guard")},
			testutil.Rule{Reason: "stores must not depend on binaries", Forbidden: testutil.Within("cmd")},
		)
	}
}
