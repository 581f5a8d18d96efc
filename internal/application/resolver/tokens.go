package resolver

import (
	"fmt"
	"strings"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// sideTokens es el resultado de emparejar clobTokenIds con outcomes.
type sideTokens struct {
	aToken, bToken string
	aLabel, bLabel string
}

// extractTokens recorre tokens y outcomes en paralelo por índice:
// YES/UP → lado A, NO/DOWN → lado B. Falla si falta alguno de los dos lados.
func extractTokens(l domain.Listing) (sideTokens, error) {
	if l.TokensMalformed {
		return sideTokens{}, fmt.Errorf("resolver.extractTokens %s: malformed arrays: %w", l.ConditionID, domain.ErrUnparseableTokens)
	}

	var st sideTokens
	for i, outcome := range l.Outcomes {
		if i >= len(l.ClobTokenIDs) {
			break
		}
		tok := strings.TrimSpace(l.ClobTokenIDs[i])
		label := strings.ToUpper(strings.TrimSpace(outcome))
		switch label {
		case "YES", "UP":
			st.aToken, st.aLabel = tok, label
		case "NO", "DOWN":
			st.bToken, st.bLabel = tok, label
		}
	}

	if st.aToken == "" || st.bToken == "" {
		return sideTokens{}, fmt.Errorf("resolver.extractTokens %s: missing side (outcomes=%v): %w",
			l.ConditionID, l.Outcomes, domain.ErrUnparseableTokens)
	}
	if st.aToken == st.bToken {
		return sideTokens{}, fmt.Errorf("resolver.extractTokens %s: duplicated token: %w", l.ConditionID, domain.ErrUnparseableTokens)
	}
	return st, nil
}
