package webhook

import (
	"regexp"
	"strings"

	"github.com/shaiso/Dialer/internal/domain"
)

const (
	intentCity          = "CITY"
	intentRiderResearch = "RIDER_RESEARCH"
)

var quotedValue = regexp.MustCompile(`'([^']+)'`)

// ExtractCity возвращает город из последнего CITY-намерения, в reasoning
// которого есть значение в одинарных кавычках. Если такого нет — "".
func ExtractCity(intents []Intent) string {
	for i := len(intents) - 1; i >= 0; i-- {
		if intents[i].Intent != intentCity {
			continue
		}
		if m := quotedValue.FindStringSubmatch(intents[i].Reasoning); m != nil {
			if city := strings.TrimSpace(m[1]); city != "" {
				return city
			}
		}
	}
	return ""
}

// IsInterested сообщает, есть ли среди намерений интерес к исследованию.
func IsInterested(intents []Intent) bool {
	for _, in := range intents {
		if strings.ReplaceAll(in.Intent, " ", "") == intentRiderResearch {
			return true
		}
	}
	return false
}

// interestOf переводит IsInterested в domain.Interest.
func interestOf(intents []Intent) domain.Interest {
	if IsInterested(intents) {
		return domain.InterestYes
	}
	return domain.InterestNo
}
