package invoicing

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/security"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/urssaf"
)

var statusLabels = map[string]string{
	models.InvoiceStatusDraft:     "Brouillon",
	models.InvoiceStatusSent:      "Envoyée",
	models.InvoiceStatusPaid:      "Payée",
	models.InvoiceStatusOverdue:   "En retard",
	models.InvoiceStatusCancelled: "Annulée",
}

// LineView is a preformatted invoice line.
type LineView struct {
	Description string
	Quantity    string
	UnitPrice   string
	Total       string
}

// ViewModel is the printable invoice with every amount and date already
// formatted for display.
type ViewModel struct {
	Number         string
	StatusLabel    string
	CompanyName    string
	CompanyAddress string
	SIRET          string
	IBAN           string
	ClientName     string
	ClientEmail    string
	ClientAddress  string
	IssueDate      string
	DueDate        string
	PaidAt         string
	Lines          []LineView
	Subtotal       string
	VATRate        string
	VAT            string
	Total          string
	VATMention     string
	Notes          string
}

// View builds the display model of an invoice, merging the issuer's profile.
func (s *Service) View(ctx context.Context, inv *models.Invoice) (*ViewModel, error) {
	_ = ctx
	vm := &ViewModel{
		Number:        inv.Number,
		StatusLabel:   statusLabels[inv.Status],
		ClientName:    inv.ClientName,
		ClientEmail:   inv.ClientEmail,
		ClientAddress: inv.ClientAddress,
		IssueDate:     urssaf.FormatDate(inv.IssueDate),
		DueDate:       urssaf.FormatDate(inv.DueDate),
		Subtotal:      urssaf.FormatEuros(inv.SubtotalCents),
		VATRate:       strings.Replace(inv.VATRate.String(), ".", ",", 1),
		VAT:           urssaf.FormatEuros(inv.VATCents),
		Total:         urssaf.FormatEuros(inv.TotalCents),
		VATMention:    inv.VATMention,
		Notes:         inv.Notes,
	}
	if inv.PaidAt != nil {
		vm.PaidAt = urssaf.FormatDate(*inv.PaidAt)
	}
	for _, l := range inv.Lines {
		vm.Lines = append(vm.Lines, LineView{
			Description: l.Description,
			Quantity:    strings.Replace(l.Quantity.String(), ".", ",", 1),
			UnitPrice:   urssaf.FormatEuros(l.UnitPriceCents),
			Total:       urssaf.FormatEuros(l.TotalCents),
		})
	}

	profile, err := s.profiles.GetByUserID(inv.UserID)
	if err != nil {
		return nil, err
	}
	vm.CompanyName = profile.CompanyName
	if vm.CompanyName == "" {
		vm.CompanyName = profile.Email
	}
	vm.CompanyAddress = profile.Address
	vm.SIRET = profile.SIRET
	if profile.IBANEnc != "" && s.cipher != nil {
		iban, err := s.cipher.Decrypt(profile.IBANEnc)
		if err != nil {
			log.Warnf("[Invoicing] Cannot decrypt IBAN of user %s: %v", inv.UserID, err)
		} else {
			vm.IBAN = security.FormatIBAN(iban)
		}
	}
	return vm, nil
}
