package queue

import (
	"fmt"
	"strings"
)

// LookupMessage is the broker payload for one BIN lookup task.
type LookupMessage struct {
	LookupID  string `json:"lookupId"`
	ImportID  string `json:"importId"`
	BinNumber string `json:"binNumber,omitempty"`
}

func (m LookupMessage) Validate() error {
	if strings.TrimSpace(m.LookupID) == "" {
		return fmt.Errorf("lookupId is required")
	}
	if strings.TrimSpace(m.ImportID) == "" {
		return fmt.Errorf("importId is required")
	}
	return nil
}
