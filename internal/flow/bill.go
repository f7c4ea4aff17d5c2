package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rodge1109/pagebot/internal/models"
)

// BillLookup resolves a consumer account code to its billing row. A nil
// record with nil error means no match.
type BillLookup interface {
	LookupBill(ctx context.Context, conscode string) (*models.BillRecord, error)
}

const billPrompt = "Please enter your Conscode to check your bill:"

// BillInquiry answers a one-shot account-code question. The dispatcher
// opens the session on the "bill" trigger and clears it before calling
// here, so a failed lookup requires re-triggering.
type BillInquiry struct {
	lookup BillLookup
}

// NewBillInquiry creates the bill-inquiry flow over the given lookup.
func NewBillInquiry(lookup BillLookup) *BillInquiry {
	return &BillInquiry{lookup: lookup}
}

// Prompt is the message that opens a bill session.
func (bi *BillInquiry) Prompt() *models.Reply {
	return models.TextReply(billPrompt)
}

// Answer resolves the conscode the sender typed and formats the bill.
func (bi *BillInquiry) Answer(ctx context.Context, senderID, conscode string) *models.Reply {
	bill, err := bi.lookup.LookupBill(ctx, conscode)
	if err != nil {
		slog.Error("bill lookup failed", "senderID", senderID, "error", err)
		bill = nil
	}
	if bill == nil {
		return models.TextReply(fmt.Sprintf(
			"Sorry, we couldn't find a record for Conscode: %q. Please check and try again by typing BILL.", conscode))
	}
	return models.TextReply(fmt.Sprintf(
		"Your bill (Conscode: %s) for THIS MONTH is %s. Consumption: %s cubic meter. Due Date: %s. Disconnection Date: %s. Please pay on time. Thank you.",
		bill.Conscode, bill.TotalAmount, bill.Consumption, bill.DueDate, bill.DisconDate))
}
