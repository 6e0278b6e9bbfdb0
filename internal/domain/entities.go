package domain

import "time"

// DateLayout is the calendar-date format used by sales, payments and
// herd records. Dates are stored as strings so a delivery keeps the day
// it was recorded on regardless of the server's time zone.
const DateLayout = "2006-01-02"

// Client is a delivery customer.
//
// Documents are merged field by field on save, so every editable field is
// always written, empty or not. CreatedAt is the exception: a zero value
// is left out so an edit keeps the stored creation time.
type Client struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	PricePerLiter *float64  `json:"pricePerLiter"` // overrides the global price when set; null clears it
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
}

func (c *Client) Validate() error {
	if c.ID == "" {
		return ErrInvalidID
	}
	if c.Name == "" || len(c.Name) > 120 {
		return ErrInvalidName
	}
	if c.PricePerLiter != nil && *c.PricePerLiter <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Sale is one delivery of milk to a client.
type Sale struct {
	ID         string  `json:"id"`
	ClientID   string  `json:"clientId"`
	Date       string  `json:"date"`
	Liters     float64 `json:"liters"`
	TotalValue float64 `json:"totalValue"`
	Paid       bool    `json:"paid"`
}

func (s *Sale) Validate() error {
	if s.ID == "" {
		return ErrInvalidID
	}
	if s.ClientID == "" {
		return ErrInvalidClientRef
	}
	if !validDate(s.Date) {
		return ErrInvalidDate
	}
	if s.Liters <= 0 {
		return ErrInvalidLiters
	}
	if s.TotalValue < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Payment records money received from a client.
type Payment struct {
	ID       string  `json:"id"`
	ClientID string  `json:"clientId"`
	Date     string  `json:"date"`
	Amount   float64 `json:"amount"`
	Note     string  `json:"note"`
}

func (p *Payment) Validate() error {
	if p.ID == "" {
		return ErrInvalidID
	}
	if p.ClientID == "" {
		return ErrInvalidClientRef
	}
	if !validDate(p.Date) {
		return ErrInvalidDate
	}
	if p.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// PaymentWrite is a payment together with the sales it settles.
// The remote write saves the payment and deletes those sales in one batch.
type PaymentWrite struct {
	Payment        Payment  `json:"payment"`
	SettledSaleIDs []string `json:"settledSaleIds"`
}

func (w *PaymentWrite) Validate() error {
	if err := w.Payment.Validate(); err != nil {
		return err
	}
	for _, id := range w.SettledSaleIDs {
		if id == "" {
			return ErrInvalidID
		}
	}
	return nil
}

// PriceSettings is the singleton holding the default price per liter.
type PriceSettings struct {
	PricePerLiter float64   `json:"pricePerLiter"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (p *PriceSettings) Validate() error {
	if p.PricePerLiter <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Cow is an animal in the reproduction-tracking herd.
type Cow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Tag       string `json:"tag"`
	Breed     string `json:"breed"`
	BirthDate string `json:"birthDate"`
	Status    string `json:"status"`
}

func (c *Cow) Validate() error {
	if c.ID == "" {
		return ErrInvalidID
	}
	if c.Name == "" || len(c.Name) > 120 {
		return ErrInvalidName
	}
	if c.BirthDate != "" && !validDate(c.BirthDate) {
		return ErrInvalidDate
	}
	return nil
}

// CalfSex is the sex recorded for a calving.
type CalfSex string

const (
	CalfFemale  CalfSex = "female"
	CalfMale    CalfSex = "male"
	CalfUnknown CalfSex = "unknown"
)

func (s CalfSex) IsValid() bool {
	switch s {
	case CalfFemale, CalfMale, CalfUnknown:
		return true
	}
	return false
}

// CalvingEvent records a cow giving birth.
type CalvingEvent struct {
	ID      string  `json:"id"`
	CowID   string  `json:"cowId"`
	Date    string  `json:"date"`
	CalfSex CalfSex `json:"calfSex"`
	Notes   string  `json:"notes"`
}

func (e *CalvingEvent) Validate() error {
	if e.ID == "" {
		return ErrInvalidID
	}
	if e.CowID == "" {
		return ErrInvalidCowRef
	}
	if !validDate(e.Date) {
		return ErrInvalidDate
	}
	if !e.CalfSex.IsValid() {
		return ErrInvalidCalfSex
	}
	return nil
}

func validDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
