// internal/notify/handler.go
package notify

import (
	"context"
	"fmt"

	"github.com/rovshanmuradov/sentinel-bot/internal/events"
	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

// Subscribe подписывает уведомления на события риска и жизненного цикла позиций.
func Subscribe(bus *events.Bus, n *Notifier) []events.Subscription {
	handler := events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		msg, ok := Format(e)
		if !ok {
			return nil
		}
		return n.Notify(ctx, msg)
	})

	kinds := []events.EventType{
		events.PositionOpened,
		events.PositionClosed,
		events.TriggerFired,
		events.SellFailed,
		events.ManualInterventionRequired,
	}
	subs := make([]events.Subscription, 0, len(kinds))
	for _, t := range kinds {
		subs = append(subs, bus.Subscribe(t, handler))
	}
	return subs
}

// Format превращает событие в текст уведомления.
func Format(e events.Event) (Message, bool) {
	switch ev := e.(type) {
	case events.PositionOpenedEvent:
		body := fmt.Sprintf("Bought %s for %.4f SOL at $%.8f\nTx: %s",
			short(ev.AssetMint), types.LamportsToSOL(ev.InvestedLamports), ev.EntryPrice, ev.Signature)
		if ev.AmountEstimated {
			body += "\nAmount is estimated from the quote"
		}
		return Message{UserID: ev.UserID, Title: title("Position opened", ev.Simulated), Body: body}, true

	case events.PositionClosedEvent:
		return Message{
			UserID: ev.UserID,
			Title:  title("Position closed", ev.Simulated),
			Body: fmt.Sprintf("Sold %s (%s) at $%.8f, PnL %+.2f%%\nTx: %s",
				short(ev.AssetMint), ev.Reason, ev.ExitPrice, ev.PnLPercent, ev.Signature),
		}, true

	case events.TriggerFiredEvent:
		// при авто-продаже пользователь узнает об итоге из PositionClosed/SellFailed
		if ev.AutoSell {
			return Message{}, false
		}
		return Message{
			UserID: ev.UserID,
			Title:  "Exit threshold reached",
			Body: fmt.Sprintf("%s hit %s at $%.8f (PnL %+.2f%%)",
				short(ev.AssetMint), ev.Trigger, ev.CurrentPrice, ev.PnLPercent),
		}, true

	case events.SellFailedEvent:
		return Message{
			UserID: ev.UserID,
			Title:  "Sell failed",
			Body: fmt.Sprintf("Could not sell %s on %s: %v\nWill retry on the next check.",
				short(ev.AssetMint), ev.Trigger, ev.Err),
		}, true

	case events.ManualInterventionEvent:
		return Message{
			UserID: ev.UserID,
			Title:  "Action required",
			Body: fmt.Sprintf("Position #%d in %s needs attention: %s (PnL %+.2f%%)",
				ev.PositionID, short(ev.AssetMint), ev.Reason, ev.PnLPercent),
		}, true
	}
	return Message{}, false
}

func title(base string, simulated bool) string {
	if simulated {
		return base + " [SIM]"
	}
	return base
}

func short(mint string) string {
	if len(mint) <= 10 {
		return mint
	}
	return mint[:4] + "..." + mint[len(mint)-4:]
}
