package handlers

import (
	"io"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

func decodeFields(r io.Reader, fields *domain.Fields) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return fields.UnmarshalJSON(body)
}
