package ledger

import (
	"fmt"

	"github.com/dwarvesf/custody-backend/internal/model"
)

func completionKey(t *model.Transfer) string {
	return "completion:" + t.IdempotencyKey()
}

func reserveKey(t *model.Transfer) string {
	return fmt.Sprintf("reserve:%d", t.ID)
}

func releaseKey(t *model.Transfer) string {
	return fmt.Sprintf("release:%d", t.ID)
}

func referralKey(p *model.ReferralPayout) string {
	return fmt.Sprintf("referral:%d:%d", p.TransferID, p.Level)
}
