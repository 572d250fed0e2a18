// Reviewctl analyzes customer reviews from the command line or serves the
// review form over HTTP.
//
// Usage:
//
//	reviewctl analyze --review "Great service!" --stakeholder "Acme Diner" --platform Yelp --stars 5
//	echo "Terrible" | reviewctl analyze --review - --stakeholder Acme --platform Google
//	reviewctl serve
package main

import (
	"os"

	"github.com/review-moderation/backend/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
