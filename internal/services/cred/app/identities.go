package app

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/louisbranch/credrank/internal/services/cred/domain/credrank"
	"github.com/louisbranch/credrank/internal/services/cred/domain/ledger"
)

var invalidNameRunes = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// ensureIdentities creates an identity for every participant the ledger
// does not know yet, named after the participant's description.
func ensureIdentities(l *ledger.Ledger, cg *credrank.CredGraph) (int, error) {
	created := 0
	for _, p := range cg.Participants() {
		if _, ok := l.IdentityByAddress(p.Address); ok || len(p.Address.Parts()) == 0 {
			continue
		}
		base := identityName(p.Description, p.Address.Parts())
		for suffix := 1; ; suffix++ {
			name := base
			if suffix > 1 {
				name = base + "-" + strconv.Itoa(suffix)
			}
			_, err := l.CreateIdentity(name, p.Address)
			if err == nil {
				created++
				break
			}
			if !errors.Is(err, ledger.ErrNameTaken) {
				return created, err
			}
		}
	}
	return created, nil
}

func identityName(description string, parts []string) string {
	name := strings.Trim(invalidNameRunes.ReplaceAllString(description, "-"), "-")
	if name == "" && len(parts) > 0 {
		name = strings.Trim(invalidNameRunes.ReplaceAllString(parts[len(parts)-1], "-"), "-")
	}
	if name == "" {
		name = "participant"
	}
	return name
}
