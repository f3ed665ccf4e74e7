// Package recon implements the reconciliation passes that compare the local
// purchase database against the remote storefront and bundle APIs: filling in
// missing identifiers, verifying ownership consistency, and producing reports
// for the operator.
package recon

import (
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/macfreek/game-db-manager/internal/gamedb"
	"github.com/macfreek/game-db-manager/internal/sources/gog"
	"github.com/macfreek/game-db-manager/internal/sources/humble"
	"github.com/macfreek/game-db-manager/internal/sources/steam"
	"github.com/macfreek/game-db-manager/pkg/fetch"
)

// purchasesTable is the table holding one row per purchased game.
const purchasesTable = "Purchases"

// Reconciler bundles the collaborators shared by all passes. Passes run
// sequentially; nothing here is safe for concurrent use.
type Reconciler struct {
	DB      *gamedb.DB
	Steam   *steam.Client
	Humble  *humble.Client
	Gog     *gog.Client
	Fetcher *fetch.Fetcher

	// Out receives actionable findings for the human operator. Warnings
	// and progress go to the structured log instead. Defaults to stdout.
	Out io.Writer

	// DryRun reports proposed updates without writing them.
	DryRun bool
}

func (r *Reconciler) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return os.Stdout
}

// Finding colors. Found identifiers are good news, everything else needs a
// human decision.
var (
	foundColor   = color.New(color.FgGreen)
	problemColor = color.New(color.FgYellow)
)

func (r *Reconciler) found(format string, args ...any) {
	_, _ = foundColor.Fprintf(r.out(), format+"\n", args...)
}

func (r *Reconciler) problem(format string, args ...any) {
	_, _ = problemColor.Fprintf(r.out(), format+"\n", args...)
}
