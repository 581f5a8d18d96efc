package resolver

import (
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/timeparse"
)

const upOrDownKeyword = "up or down"

// classify decide el shape de un listado y su expiración. Devuelve
// ShapeOther si el listado no pasa los filtros de ningún shape habilitado.
func (r *Resolver) classify(l domain.Listing, now time.Time) (domain.Shape, time.Time, error) {
	if l.Closed {
		return domain.ShapeOther, time.Time{}, nil
	}

	q := strings.ToLower(l.Question)
	fifteen := strings.Contains(q, upOrDownKeyword)
	daily := r.cfg.IncludeDaily && !fifteen &&
		containsAny(q, r.cfg.AssetKeywords) && containsAny(q, r.cfg.ResolutionKeywords)
	if !fifteen && !daily {
		return domain.ShapeOther, time.Time{}, nil
	}

	end, err := timeparse.Resolve(l.EndDate, l.Question, now)
	if err != nil {
		return domain.ShapeOther, time.Time{}, fmt.Errorf("resolver.classify %s: %w", l.ConditionID, err)
	}

	ttl := end.Sub(now)
	switch {
	case fifteen && ttl <= r.cfg.FifteenMinHorizon:
		return domain.ShapeFifteenMinute, end, nil
	case daily && ttl <= r.cfg.DailyHorizon:
		return domain.ShapeDaily, end, nil
	}
	return domain.ShapeOther, end, nil
}

// containsAny comprueba palabras clave con límites de palabra simples para
// evitar falsos positivos ("eth" dentro de "method").
func containsAny(text string, keywords []string) bool {
	padded := " " + replacePunct(text) + " "
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if strings.Contains(padded, " "+k+" ") {
			return true
		}
	}
	return false
}

func replacePunct(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '?', '!', ',', '.', ':', ';', '-', '(', ')', '$', '"', '\'':
			return ' '
		}
		return r
	}, s)
}

// monitorWindowFor devuelve la ventana de monitoreo configurada para el shape.
func (r *Resolver) monitorWindowFor(s domain.Shape) time.Duration {
	if s == domain.ShapeDaily {
		return r.cfg.DailyMonitorWindow
	}
	return r.cfg.FifteenMinMonitorWindow
}
