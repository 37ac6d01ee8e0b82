// internal/bot/proposal.go
package bot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/sentinel-bot/internal/storage/models"
)

// Safety verdicts
const (
	VerdictSafe    = "SAFE"
	VerdictCaution = "CAUTION"
	VerdictUnsafe  = "UNSAFE"
)

// Advisor decisions
const (
	DecisionBuy   = "BUY"
	DecisionHold  = "HOLD"
	DecisionAvoid = "AVOID"
)

// Assessment - оценка безопасности токена от внешнего сервиса.
type Assessment struct {
	Verdict   string
	RiskScore int
	Detail    string
}

// Advice - рекомендация советника.
type Advice struct {
	Decision string
	Reason   string
}

type ProposalStatus string

const (
	ProposalRejected ProposalStatus = "rejected"
	ProposalPending  ProposalStatus = "pending"
	ProposalExecuted ProposalStatus = "executed"
)

// Proposal - итог ProposeBuy. Position заполнена только для executed.
type Proposal struct {
	Status   ProposalStatus
	Reason   string
	Position *models.Position
}

// ProposeBuy решает, предлагать ли покупку. UNSAFE и AVOID отклоняют ее,
// BUY при включенной авто-покупке исполняется сразу, остальное ждет
// подтверждения пользователя.
func (s *Service) ProposeBuy(ctx context.Context, userID int64, mint string, lamports uint64, a Assessment, adv Advice) (*Proposal, error) {
	verdict := strings.ToUpper(strings.TrimSpace(a.Verdict))
	decision := strings.ToUpper(strings.TrimSpace(adv.Decision))

	logger := s.logger.With(
		zap.Int64("user_id", userID),
		zap.String("mint", mint),
		zap.String("verdict", verdict),
		zap.Int("risk_score", a.RiskScore),
		zap.String("decision", decision))

	switch {
	case verdict == VerdictUnsafe:
		logger.Info("Buy rejected by safety check")
		return &Proposal{Status: ProposalRejected, Reason: fmt.Sprintf("safety check: %s", a.Detail)}, nil
	case decision == DecisionAvoid:
		logger.Info("Buy rejected by advisor")
		return &Proposal{Status: ProposalRejected, Reason: fmt.Sprintf("advisor: %s", adv.Reason)}, nil
	}

	settings, err := s.deps.Store.GetRiskSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if decision != DecisionBuy || !settings.AutoBuy {
		return &Proposal{Status: ProposalPending, Reason: adv.Reason}, nil
	}

	p, err := s.Buy(ctx, userID, mint, lamports)
	if err != nil {
		return nil, err
	}
	logger.Info("Auto-buy executed", zap.Int64("position_id", p.ID))
	return &Proposal{Status: ProposalExecuted, Reason: adv.Reason, Position: p}, nil
}
