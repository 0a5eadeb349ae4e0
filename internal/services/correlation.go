package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/repository"
)

// Note kinds written on sale ledger entries
const (
	NoteKindCharge  = "charge"
	NoteKindPayment = "payment"
)

// #<n> not preceded by a word character and not followed by one
var invoiceRefPattern = regexp.MustCompile(`(?:^|[^\w#])#(\d+)\b`)

// InvoiceNote builds the ledger note for an entry written on behalf of a sale
func InvoiceNote(kind string, invoiceNumber int64) string {
	if kind == NoteKindPayment {
		return fmt.Sprintf("Payment received with sale #%d", invoiceNumber)
	}
	return fmt.Sprintf("Credit sale #%d", invoiceNumber)
}

// ParseInvoiceRefs extracts every invoice number mentioned in a note
func ParseInvoiceRefs(note string) []int64 {
	var refs []int64
	for _, match := range invoiceRefPattern.FindAllStringSubmatch(note, -1) {
		n, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		refs = append(refs, n)
	}
	return refs
}

func mentionsInvoice(note string, invoiceNumber int64) bool {
	for _, ref := range ParseInvoiceRefs(note) {
		if ref == invoiceNumber {
			return true
		}
	}
	return false
}

// Correlator links sales and the ledger entries they produced
type Correlator struct {
	ledgerRepo repository.LedgerRepository
	saleRepo   repository.SaleRepository
}

func NewCorrelator(ledgerRepo repository.LedgerRepository, saleRepo repository.SaleRepository) *Correlator {
	return &Correlator{ledgerRepo: ledgerRepo, saleRepo: saleRepo}
}

// FindSaleTransactions returns the ledger entries of a sale, oldest first.
// Entries written before the sale reference existed are matched by the invoice token in their note.
func (c *Correlator) FindSaleTransactions(ctx context.Context, sale *models.Sale) ([]models.KhataTransaction, error) {
	linked, err := c.ledgerRepo.FindBySaleID(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	if sale.KhataID == nil {
		return linked, nil
	}

	legacy, err := c.ledgerRepo.FindUnlinkedByKhataID(ctx, *sale.KhataID)
	if err != nil {
		return nil, err
	}

	for _, entry := range legacy {
		if mentionsInvoice(entry.Note, sale.InvoiceNumber) {
			linked = append(linked, entry)
		}
	}

	sort.Slice(linked, func(i, j int) bool { return linked[i].ID < linked[j].ID })
	return linked, nil
}

// FindSaleForTransaction returns the sale that produced a ledger entry
func (c *Correlator) FindSaleForTransaction(ctx context.Context, entry *models.KhataTransaction) (*models.Sale, error) {
	if entry.OriginatingSaleID != nil {
		sale, err := c.saleRepo.FindByID(ctx, *entry.OriginatingSaleID)
		if err != nil {
			return nil, notFound(err, "sale")
		}
		return sale, nil
	}

	refs := ParseInvoiceRefs(entry.Note)
	if len(refs) == 0 {
		return nil, fmt.Errorf("sale: %w", ErrNotFound)
	}

	sales, err := c.saleRepo.FindByInvoiceNumbers(ctx, entry.KhataID, refs)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, fmt.Errorf("sale: %w", ErrNotFound)
	}
	return &sales[0], nil
}
