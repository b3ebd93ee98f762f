package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Entity is a document stored in a Collection. The id lives outside the
// JSON body and is exchanged as "_id".
type Entity interface {
	DocID() string
	SetDocID(id string)
}

// Doc constrains P to be a pointer to T that implements Entity.
type Doc[T any] interface {
	*T
	Entity
}

// normalizer is implemented by entities that tidy their fields before
// validation.
type normalizer interface {
	Normalize()
}

type Center struct {
	ID   string `json:"_id"`
	Name string `json:"name" validate:"required"`
}

func (c *Center) DocID() string      { return c.ID }
func (c *Center) SetDocID(id string) { c.ID = id }
func (c *Center) Normalize()         { c.Name = strings.TrimSpace(c.Name) }

// ScopeRef is the id matched against assigned centers.
func (c Center) ScopeRef() string { return c.ID }

type Service struct {
	ID   string  `json:"_id"`
	Name string  `json:"name" validate:"required"`
	Cost float64 `json:"cost" validate:"gte=0"`
	Tax  float64 `json:"tax" validate:"gte=0"`
}

func (s *Service) DocID() string      { return s.ID }
func (s *Service) SetDocID(id string) { s.ID = id }
func (s *Service) Normalize()         { s.Name = strings.TrimSpace(s.Name) }

// ScopeRef is the id matched against assigned services.
func (s Service) ScopeRef() string { return s.ID }

// Cost is a named cost category.
type Cost struct {
	ID   string `json:"_id"`
	Name string `json:"name" validate:"required"`
}

func (c *Cost) DocID() string      { return c.ID }
func (c *Cost) SetDocID(id string) { c.ID = id }
func (c *Cost) Normalize()         { c.Name = strings.TrimSpace(c.Name) }

type Client struct {
	ID                   string `json:"_id"`
	FirstName            string `json:"firstName" validate:"required"`
	LastName             string `json:"lastName" validate:"required"`
	Email                string `json:"email,omitempty" validate:"omitempty,email"`
	PhoneNumber          string `json:"phoneNumber,omitempty"`
	SecondaryPhoneNumber string `json:"secondaryPhoneNumber,omitempty"`
	Gender               string `json:"gender,omitempty"`
	Birthdate            *Date  `json:"birthdate,omitempty"`
	Zipcode              *int   `json:"zipcode,omitempty"`
	City                 string `json:"city,omitempty"`
	Address              string `json:"address,omitempty"`
}

func (c *Client) DocID() string      { return c.ID }
func (c *Client) SetDocID(id string) { c.ID = id }

func (c *Client) Normalize() {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(c.Email)
}

// DisplayName is the name denormalised onto transactions.
func (c *Client) DisplayName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Transaction is one ledger movement. Center and Service hold ids; the
// *Name fields are copies resolved at write time for display.
type Transaction struct {
	ID                string  `json:"_id"`
	Index             int64   `json:"index"`
	Date              Date    `json:"date"`
	Center            string  `json:"center" validate:"required"`
	CenterName        string  `json:"centerName,omitempty"`
	Client            string  `json:"client,omitempty"`
	ClientName        string  `json:"clientName,omitempty"`
	Service           string  `json:"service,omitempty"`
	ServiceName       string  `json:"serviceName,omitempty"`
	Worker            string  `json:"worker,omitempty"`
	Cost              float64 `json:"cost"`
	Taxes             float64 `json:"taxes"`
	TypeOfTransaction string  `json:"typeOfTransaction,omitempty"`
	TypeOfMovement    string  `json:"typeOfMovement,omitempty"`
	Frequency         string  `json:"frequency,omitempty"`
	TypeOfClient      string  `json:"typeOfClient,omitempty"`
}

func (t *Transaction) DocID() string      { return t.ID }
func (t *Transaction) SetDocID(id string) { t.ID = id }

func (t *Transaction) Normalize() {
	t.Center = strings.TrimSpace(t.Center)
	t.Service = strings.TrimSpace(t.Service)
	t.Client = strings.TrimSpace(t.Client)
}

func (t Transaction) CenterRef() string  { return t.Center }
func (t Transaction) ServiceRef() string { return t.Service }

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02", "02/01/2006"}

// Date accepts RFC 3339 timestamps, bare ISO dates and DD/MM/YYYY, and is
// always written back as RFC 3339.
type Date struct {
	time.Time
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.UTC().Format(time.RFC3339Nano))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		d.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognised date %q", s)
}
