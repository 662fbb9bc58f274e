package billing

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Invoice statuses.
const (
	StatusUnpaid = "unpaid"
	StatusPaid   = "paid"
)

var statusLabels = map[string]string{
	StatusUnpaid: "Chưa thanh toán",
	StatusPaid:   "Đã thanh toán",
}

// StatusLabel returns the display label for a status code.
func StatusLabel(code string) string {
	return statusLabels[code]
}

const maxPaymentMethodLength = 50

type Invoice struct {
	ID            uuid.UUID  `json:"invoice_id"`
	EncounterID   uuid.UUID  `json:"encounter_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	PatientName   string     `json:"patient_name,omitempty"`
	ServiceFee    float64    `json:"service_fee"`
	DrugFee       float64    `json:"drug_fee"`
	Total         float64    `json:"total"`
	Status        string     `json:"status"`
	StatusLabel   string     `json:"status_label"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// LineItem is a prescribed drug as billed on the invoice.
type LineItem struct {
	DrugID    uuid.UUID `json:"drug_id"`
	DrugName  string    `json:"drug_name"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Amount    float64   `json:"amount"`
	Usage     string    `json:"usage,omitempty"`
}

type InvoiceDetail struct {
	Invoice
	EncounterDate time.Time   `json:"encounter_date"`
	DoctorName    string      `json:"doctor_name"`
	Notes         string      `json:"notes"`
	Diagnosis     string      `json:"diagnosis"`
	Items         []*LineItem `json:"items"`
}

type PaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// RoundMoney rounds an amount to the two decimals the invoice columns keep.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func lineAmount(quantity int, unitPrice float64) float64 {
	return RoundMoney(float64(quantity) * unitPrice)
}

// ParseStatus accepts a status code or its display label.
func ParseStatus(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if _, ok := statusLabels[strings.ToLower(s)]; ok {
		return strings.ToLower(s), true
	}
	for code, label := range statusLabels {
		if strings.EqualFold(label, s) {
			return code, true
		}
	}
	return "", false
}
