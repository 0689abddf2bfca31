package storage

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
)

const MaxRunEnergy = 100

// PlayerRecord is the persisted state of one account.
type PlayerRecord struct {
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	Rights       uint8     `json:"rights"`
	X            uint16    `json:"x"`
	Y            uint16    `json:"y"`
	RunEnergy    uint8     `json:"run_energy"`
	Created      time.Time `json:"created"`
	LastLogin    time.Time `json:"last_login"`
}

func (r *PlayerRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("record must be set")
	}

	el := errors.NewErrorList()

	if r.Name == "" {
		el.Add(fmt.Errorf("name must be set"))
	}
	if r.PasswordHash == "" {
		el.Add(fmt.Errorf("password hash must be set"))
	}
	if r.RunEnergy > MaxRunEnergy {
		el.Add(fmt.Errorf("run energy %d exceeds %d", r.RunEnergy, MaxRunEnergy))
	}

	return el.Err()
}

// Clone returns a copy that shares no memory with r.
func (r *PlayerRecord) Clone() *PlayerRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

type PlayerStore = Store[*PlayerRecord]
