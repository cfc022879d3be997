package credrank

import (
	"io"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/louisbranch/credrank/internal/services/cred/app"
	"github.com/louisbranch/credrank/internal/services/cred/domain/grain"
	"github.com/louisbranch/credrank/internal/services/cred/domain/policy"
)

const nameWidth = 22

// WriteSummary prints the limit participants with the most cred and, when
// present, the distribution. A limit of zero or less lists everyone. Shares
// are of participant cred.
func WriteSummary(w io.Writer, result app.Result, limit int) error {
	p := message.NewPrinter(language.English)
	cg := result.CredGraph
	if cg == nil {
		return nil
	}

	participants := cg.Participants()
	sort.SliceStable(participants, func(i, j int) bool { return participants[i].Cred > participants[j].Cred })
	total := cg.ParticipantTotal()

	conv := cg.Convergence()
	p.Fprintf(w, "cred computed in %d iterations (converged: %t)\n", conv.Iterations, conv.Converged)
	p.Fprintf(w, "%d participants over %d epochs, %.2f participant cred of %.2f total\n\n",
		len(participants), len(cg.Epochs()), total, cg.TotalCred())
	shown := participants
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	p.Fprintf(w, "| %s | %12s | %8s |\n", pad("participant", nameWidth), "cred", "%")
	p.Fprintf(w, "| %s | %s | %s |\n", strings.Repeat("-", nameWidth), strings.Repeat("-", 12), strings.Repeat("-", 8))
	for _, pc := range shown {
		share := 0.0
		if total > 0 {
			share = 100 * pc.Cred / total
		}
		p.Fprintf(w, "| %s | %12.2f | %7.2f%% |\n", pad(pc.Description, nameWidth), pc.Cred, share)
	}
	if hidden := len(participants) - len(shown); hidden > 0 {
		p.Fprintf(w, "... and %d more\n", hidden)
	}

	if result.Distribution == nil || result.Ledger == nil {
		return nil
	}
	d := *result.Distribution
	distributed := d.TotalDistributed()
	balances := d.Balances()
	p.Fprintf(w, "\ndistributed %s to %d identities\n", grain.Format(distributed, 0, "g"), len(balances))
	for _, allocation := range d.Allocations {
		p.Fprintf(w, "  %s: %s\n", allocation.Policy.PolicyType(), grain.Format(allocation.Policy.PolicyBudget(), 0, "g"))
	}

	ids := make([]policy.IdentityID, 0, len(balances))
	for identityID := range balances {
		ids = append(ids, identityID)
	}
	sort.Slice(ids, func(i, j int) bool {
		if c := balances[ids[i]].Cmp(balances[ids[j]]); c != 0 {
			return c > 0
		}
		return ids[i] < ids[j]
	})
	p.Fprintf(w, "\n| %s | %12s | %8s |\n", pad("name", nameWidth), "grain", "%")
	p.Fprintf(w, "| %s | %s | %s |\n", strings.Repeat("-", nameWidth), strings.Repeat("-", 12), strings.Repeat("-", 8))
	for _, identityID := range ids {
		name := string(identityID)
		if account, err := result.Ledger.Account(identityID); err == nil {
			name = account.Identity.Name
		}
		amount := balances[identityID]
		p.Fprintf(w, "| %s | %12s | %7.2f%% |\n", pad(name, nameWidth), grain.Format(amount, 3, ""), 100*grain.ToFloatRatio(amount, distributed))
	}
	return nil
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
