// internal/types/priority.go
package types

import "fmt"

type PriorityLevel string

const (
	PriorityLow     PriorityLevel = "low"
	PriorityMedium  PriorityLevel = "medium"
	PriorityHigh    PriorityLevel = "high"
	PriorityExtreme PriorityLevel = "extreme"
)

// priorityFees maps a level to the prioritizationFeeLamports sent to the
// aggregator when it builds the swap.
var priorityFees = map[PriorityLevel]uint64{
	PriorityLow:     5_000,
	PriorityMedium:  10_000,
	PriorityHigh:    50_000,
	PriorityExtreme: 200_000,
}

// ParsePriorityLevel парсит уровень из конфигурации. Пустая строка дает medium.
func ParsePriorityLevel(s string) (PriorityLevel, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	level := PriorityLevel(s)
	if _, ok := priorityFees[level]; !ok {
		return "", fmt.Errorf("unknown priority level: %s", s)
	}
	return level, nil
}

// FeeLamports возвращает приоритетную комиссию для уровня.
func (l PriorityLevel) FeeLamports() uint64 {
	if fee, ok := priorityFees[l]; ok {
		return fee
	}
	return priorityFees[PriorityMedium]
}
